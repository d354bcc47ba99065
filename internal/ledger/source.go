package ledger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	rpcclient "github.com/stellar/go/clients/rpcclient"
)

// Source is the read-only view of the external ledger the poller needs.
// Implementations must tolerate overlapping range queries: the poller may
// re-request positions it has already seen after a crash.
type Source interface {
	// GetHead returns the latest ledger sequence known to the node
	GetHead(ctx context.Context) (uint32, error)

	// GetEvents returns all events for contractID in [from, to], in
	// non-decreasing ledger order. Pagination against the node happens
	// inside the call.
	GetEvents(ctx context.Context, from, to uint32, contractID string) ([]RawEvent, error)
}

// RPCSource reads events from a Stellar RPC node. Head lookups use the
// SDK client; getEvents goes over a plain JSON-RPC channel.
type RPCSource struct {
	client    *rpcclient.Client
	rpc       *jrpc2.Client
	pageLimit int
}

// NewRPCSource creates a source against the given RPC endpoint.
// pageLimit bounds the number of events requested per getEvents page.
func NewRPCSource(serverURL string, pageLimit int) *RPCSource {
	if pageLimit <= 0 {
		pageLimit = 100
	}

	channel := jhttp.NewChannel(serverURL, nil)

	return &RPCSource{
		client:    rpcclient.NewClient(serverURL, &http.Client{}),
		rpc:       jrpc2.NewClient(channel, nil),
		pageLimit: pageLimit,
	}
}

// GetHead returns the latest ledger sequence from the node health report
func (s *RPCSource) GetHead(ctx context.Context) (uint32, error) {
	health, err := s.client.GetHealth(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get health: %w", err)
	}

	return health.LatestLedger, nil
}

// GetEvents pages through getEvents starting at from and collects every
// event for contractID up to ledger to. The node may return events past
// the requested bound; those are dropped here so callers see exactly the
// window they asked for.
func (s *RPCSource) GetEvents(ctx context.Context, from, to uint32, contractID string) ([]RawEvent, error) {
	var collected []RawEvent

	req := getEventsRequest{
		StartLedger: from,
		Filters: []eventFilter{{
			Type:        "contract",
			ContractIDs: []string{contractID},
		}},
		Pagination: &pagination{Limit: s.pageLimit},
	}

	for {
		var resp getEventsResponse
		if err := s.rpc.CallResult(ctx, "getEvents", req, &resp); err != nil {
			return nil, fmt.Errorf("getEvents failed: %w", err)
		}

		done := len(resp.Events) < s.pageLimit
		for _, ev := range resp.Events {
			if ev.Ledger > to {
				done = true
				break
			}
			collected = append(collected, ev)
		}

		if done || resp.Cursor == "" {
			return collected, nil
		}

		// Cursor pagination: startLedger must be absent on follow-up pages
		req = getEventsRequest{
			Filters:    req.Filters,
			Pagination: &pagination{Cursor: resp.Cursor, Limit: s.pageLimit},
		}
	}
}

// Close releases the JSON-RPC channel
func (s *RPCSource) Close() {
	s.rpc.Close()
}
