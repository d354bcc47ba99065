package handlers

import (
	"fmt"
	"strconv"

	"eventsync/internal/models"
)

// Decoded event data round-trips through JSONB, so a field written as a
// uint64 comes back as float64. These helpers normalize what handlers
// read out of EventData and Topics.

// stringField reads a string field from the event body
func stringField(event *models.LedgerEvent, key string) (string, error) {
	raw, ok := event.EventData[key]
	if !ok {
		return "", fmt.Errorf("event %s missing field %q", event.ApplicationKey(), key)
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("event %s field %q is %T, want string", event.ApplicationKey(), key, raw)
	}

	return s, nil
}

// optionalStringField reads a string field, returning "" when absent
func optionalStringField(event *models.LedgerEvent, key string) string {
	if s, ok := event.EventData[key].(string); ok {
		return s
	}
	return ""
}

// intField reads a numeric field from the event body, tolerating the
// numeric types produced both by XDR decoding and by the JSONB round-trip
func intField(event *models.LedgerEvent, key string) (int64, error) {
	raw, ok := event.EventData[key]
	if !ok {
		return 0, fmt.Errorf("event %s missing field %q", event.ApplicationKey(), key)
	}

	n, err := asInt64(raw)
	if err != nil {
		return 0, fmt.Errorf("event %s field %q: %w", event.ApplicationKey(), key, err)
	}

	return n, nil
}

func asInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", raw)
	}
}

// topicAddress reads the address carried in topic position i. Contract
// events put the account address in the topic list, not the body.
func topicAddress(event *models.LedgerEvent, i int) (string, error) {
	if i >= len(event.Topics) {
		return "", fmt.Errorf("event %s has %d topics, want address at %d", event.ApplicationKey(), len(event.Topics), i)
	}

	addr := event.Topics[i]
	if addr == "" {
		return "", fmt.Errorf("event %s topic %d is empty", event.ApplicationKey(), i)
	}

	return addr, nil
}
