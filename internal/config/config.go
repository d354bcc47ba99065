package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Postgres connection string
	DatabaseURL string

	// Stellar RPC endpoint ( head lookup + getEvents )
	RPCServerURL string

	// Contract whose events are ingested
	ContractID string

	// Starting ledger sequence used to seed a missing checkpoint
	// ( 0 means start from the current head )
	StartLedger uint32

	// Poller cadence and windowing
	PollInterval    time.Duration
	MaxLedgerWindow uint32 // maximum ledger span fetched per getEvents walk step
	EventsPerFetch  int    // page size for getEvents pagination

	// NATS work queue
	NATSURL      string
	StreamName   string
	Subject      string
	ConsumerName string
	WorkerCount  int
	MaxDeliver   int
	AckWait      time.Duration
	NakDelay     time.Duration // base redelivery delay, doubled per attempt

	// Recovery sweep
	RecoveryInterval time.Duration
	RecoveryGrace    time.Duration
	RecoveryBatch    int

	// Operational HTTP server
	APIPort int

	LogLevel string
}

// Load reads the configuration from environment variables
func Load() *Config {
	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RPCServerURL: getEnv("RPC_SERVER_URL", "https://soroban-testnet.stellar.org"),
		ContractID:   os.Getenv("CONTRACT_ID"),
		StartLedger:  getEnvAsUint32("START_LEDGER", 0),

		PollInterval:    getEnvAsDuration("POLL_INTERVAL_SEC", 5),
		MaxLedgerWindow: getEnvAsUint32("MAX_LEDGER_WINDOW", 1000),
		EventsPerFetch:  getEnvAsInt("EVENTS_PER_FETCH", 100),

		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		StreamName:   getEnv("QUEUE_STREAM", "EVENTSYNC"),
		Subject:      getEnv("QUEUE_SUBJECT", "eventsync.process"),
		ConsumerName: getEnv("QUEUE_CONSUMER", "eventsync-workers"),
		WorkerCount:  getEnvAsInt("QUEUE_WORKERS", 4),
		MaxDeliver:   getEnvAsInt("QUEUE_MAX_DELIVER", 5),
		AckWait:      getEnvAsDuration("QUEUE_ACK_WAIT_SEC", 30),
		NakDelay:     getEnvAsDuration("QUEUE_NAK_DELAY_SEC", 5),

		RecoveryInterval: getEnvAsDuration("RECOVERY_INTERVAL_SEC", 3600),
		RecoveryGrace:    getEnvAsDuration("RECOVERY_GRACE_SEC", 1800),
		RecoveryBatch:    getEnvAsInt("RECOVERY_BATCH", 100),

		APIPort: getEnvAsInt("API_PORT", 8080),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RPCServerURL == "" {
		return fmt.Errorf("RPC_SERVER_URL is required")
	}
	if c.ContractID == "" {
		return fmt.Errorf("CONTRACT_ID is required")
	}
	if c.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	if c.MaxLedgerWindow == 0 {
		return fmt.Errorf("MAX_LEDGER_WINDOW must be positive")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1")
	}
	return nil
}

// Helper: get string from env with default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get uint32 from env
func getEnvAsUint32(key string, defaultVal uint32) uint32 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseUint(valStr, 10, 32)
	if err != nil {
		return defaultVal
	}
	return uint32(val)
}

// Helper: get duration in seconds from env
func getEnvAsDuration(key string, defaultSec int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSec)) * time.Second
}
