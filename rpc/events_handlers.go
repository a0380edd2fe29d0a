package rpc

import (
	"context"
	"errors"

	"vedex/indexer"
)

// EventStore answers historical event queries.
type EventStore interface {
	Query(ctx context.Context, f indexer.Filter) ([]indexer.Record, error)
}

var errEventsDisabled = errors.New("event index disabled")

func init() {
	register(map[string]method{
		"events_query": {module: "events", handler: handleQueryEvents},
	})
}

type eventQueryParams struct {
	Type     string  `json:"type,omitempty"`
	Position *uint64 `json:"position,omitempty"`
	Pool     string  `json:"pool,omitempty"`
	Account  string  `json:"account,omitempty"`
	AfterSeq uint64  `json:"afterSeq,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

type eventRecordJSON struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	IndexedAt  int64             `json:"indexedAt"`
}

func handleQueryEvents(s *Server, c *call) (interface{}, error) {
	if s.cfg.Events == nil {
		return nil, errEventsDisabled
	}
	var p eventQueryParams
	if err := c.decode(&p); err != nil {
		return nil, err
	}
	if p.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	filter := indexer.Filter{
		Type:     p.Type,
		Position: p.Position,
		AfterSeq: p.AfterSeq,
		Limit:    p.Limit,
	}
	if p.Pool != "" {
		id, err := parsePoolID(p.Pool)
		if err != nil {
			return nil, err
		}
		filter.Pool = id.Hex()
	}
	if p.Account != "" {
		addr, err := parseBech32Address("account", p.Account)
		if err != nil {
			return nil, err
		}
		filter.Account = formatAddress(addr)
	}
	records, err := s.cfg.Events.Query(c.ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]eventRecordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, eventRecordJSON{
			ID:         rec.ID,
			Seq:        rec.Seq,
			Type:       rec.Type,
			Attributes: rec.Attrs(),
			IndexedAt:  rec.CreatedAt.Unix(),
		})
	}
	return out, nil
}
