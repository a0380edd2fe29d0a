package rpc

import (
	"net/http"
	"testing"

	"vedex/indexer"
)

func TestEventsQueryDisabledWithoutIndex(t *testing.T) {
	env := newTestEnv(t)
	resp, status := env.call(t, "events_query", map[string]interface{}{}, nil)
	if status != http.StatusServiceUnavailable || resp.Error == nil {
		t.Fatalf("expected unavailable, got %d %+v", status, resp.Error)
	}
}

func TestEventsQueryReturnsIndexedEvents(t *testing.T) {
	env := newTestEnv(t)
	db, err := indexer.Open(indexer.DriverSQLite, "file:rpc_events?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	ix, err := indexer.New(db, nil)
	if err != nil {
		t.Fatalf("new indexer: %v", err)
	}
	env.node.Subscribe(ix)
	srv, err := NewServer(env.node, ServerConfig{Events: ix})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.srv = srv

	env.seed(t)
	ix.Close()

	var records []eventRecordJSON
	env.mustCall(t, "events_query", map[string]interface{}{
		"type":    "escrow.lock.created",
		"account": addressOf(env.alice),
	}, nil, &records)
	if len(records) != 1 {
		t.Fatalf("expected one lock event, got %d", len(records))
	}
	if records[0].Attributes["amount"] != units(100) || len(records[0].ID) != 64 {
		t.Fatalf("unexpected record %+v", records[0])
	}

	var all []eventRecordJSON
	env.mustCall(t, "events_query", map[string]interface{}{"limit": 500}, nil, &all)
	if len(all) <= 1 || all[0].Seq != 1 {
		t.Fatalf("expected full history from seq 1, got %d records", len(all))
	}

	resp, status := env.call(t, "events_query", map[string]interface{}{"limit": -1}, nil)
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %d %+v", status, resp.Error)
	}
}
