// Package indexer mirrors committed protocol events into a SQL database so
// history can be queried without replaying the state store.
package indexer

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"vedex/core"
	"vedex/core/events"
	"vedex/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	queueSize     = 4096
	batchSize     = 256
	flushInterval = 500 * time.Millisecond
	defaultLimit  = 100
	maxLimit      = 1000
)

// accountKeys lists the attributes tried, in order, to fill Record.Account.
var accountKeys = []string{"owner", "account", "from", "payer", "funder", "recipient"}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Type     string
	Position *uint64
	Pool     string
	Account  string
	AfterSeq uint64
	Limit    int
}

// Indexer is an events.Emitter that persists events on a background worker.
// Emit never blocks the caller; events arriving while the queue is full are
// counted and dropped.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	queue   chan *types.Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	seq     uint64
	dropped atomic.Uint64
}

var _ events.Emitter = (*Indexer)(nil)

// New starts an indexer over db. Sequence numbers continue from the highest
// one already stored.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Record{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	ix := &Indexer{
		db:      db,
		logger:  logger.With("component", "indexer"),
		queue:   make(chan *types.Event, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		seq:     last,
	}
	go ix.run()
	return ix, nil
}

// Emit queues evt for persistence. Events without an attribute payload are
// ignored.
func (ix *Indexer) Emit(evt events.Event) {
	payload := core.Payload(evt)
	if payload == nil {
		return
	}
	select {
	case <-ix.done:
		return
	default:
	}
	select {
	case ix.queue <- payload:
	default:
		if ix.dropped.Add(1) == 1 {
			ix.logger.Warn("event queue full, dropping events")
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (ix *Indexer) Dropped() uint64 { return ix.dropped.Load() }

// Close flushes queued events and stops the worker.
func (ix *Indexer) Close() {
	ix.once.Do(func() { close(ix.done) })
	<-ix.stopped
}

func (ix *Indexer) run() {
	defer close(ix.stopped)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := ix.store(batch); err != nil {
			ix.logger.Error("persist events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	for {
		select {
		case payload := <-ix.queue:
			batch = append(batch, ix.record(payload))
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ix.done:
			for {
				select {
				case payload := <-ix.queue:
					batch = append(batch, ix.record(payload))
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ix *Indexer) store(batch []Record) error {
	return ix.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(batch, batchSize).Error
}

func (ix *Indexer) record(payload *types.Event) Record {
	ix.seq++
	attrs, _ := json.Marshal(payload.Attributes)
	rec := Record{
		ID:         EventID(ix.seq, payload),
		Seq:        ix.seq,
		Type:       payload.Type,
		Pool:       payload.Attr("pool"),
		Attributes: string(attrs),
		CreatedAt:  time.Now().UTC(),
	}
	if pos, ok := positionOf(payload); ok {
		rec.Position = &pos
	}
	for _, key := range accountKeys {
		if v := payload.Attr(key); v != "" {
			rec.Account = v
			break
		}
	}
	return rec
}

// positionOf extracts the escrow position an event refers to. Escrow events
// carry it as "id", the others as "position".
func positionOf(payload *types.Event) (uint64, bool) {
	if v, ok := payload.Uint("position"); ok {
		return v, true
	}
	if strings.HasPrefix(payload.Type, "escrow.") {
		return payload.Uint("id")
	}
	return 0, false
}

// EventID derives the content address of an event: a BLAKE3 digest over the
// sequence number, the type and the sorted attributes.
func EventID(seq uint64, payload *types.Event) string {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	h.Write([]byte(payload.Type))
	keys := make([]string, 0, len(payload.Attributes))
	for k := range payload.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(payload.Attributes[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Query returns stored events matching f in sequence order.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := ix.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", f.AfterSeq)
	if f.Type != "" {
		if strings.HasSuffix(f.Type, ".") {
			q = q.Where("type LIKE ?", f.Type+"%")
		} else {
			q = q.Where("type = ?", f.Type)
		}
	}
	if f.Position != nil {
		q = q.Where("position = ?", *f.Position)
	}
	if f.Pool != "" {
		q = q.Where("pool = ?", f.Pool)
	}
	if f.Account != "" {
		q = q.Where("account = ?", f.Account)
	}
	var out []Record
	if err := q.Order("seq ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored events of the given type, or of every
// type when eventType is empty.
func (ix *Indexer) Count(ctx context.Context, eventType string) (int64, error) {
	q := ix.db.WithContext(ctx).Model(&Record{})
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
