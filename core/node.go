package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	coreerrors "vedex/core/errors"
	"vedex/core/events"
	"vedex/core/state"
	"vedex/core/types"
	"vedex/native/accrual"
	"vedex/native/common"
	"vedex/native/minter"
	"vedex/native/pool"
	"vedex/native/rebase"
	"vedex/native/token"
	"vedex/native/voter"
	"vedex/native/votingescrow"
	"vedex/storage"
)

// Module names used for pause guards and metrics.
const (
	ModuleToken  = "token"
	ModulePool   = "pool"
	ModuleEscrow = "escrow"
	ModuleVoter  = "voter"
	ModuleGauge  = "gauge"
	ModuleBribe  = "bribe"
	ModuleMinter = "minter"
	ModuleRebase = "rebase"
)

// Options configures a Node.
type Options struct {
	Token    string
	Decimals uint8
	Admin    [20]byte
	Escrow   votingescrow.Params
	Accrual  accrual.Config
	Schedule minter.Schedule
	Paused   []string
	Logger   *slog.Logger
	Now      func() int64
}

// CallObserver is notified after every state-changing call.
type CallObserver interface {
	ObserveCall(module, op string, err error, elapsed time.Duration)
}

// Node is the central controller. It owns the state manager, wires the
// protocol engines together and serialises every state-changing call inside
// one state transaction.
type Node struct {
	db     storage.Database
	state  *state.Manager
	opts   Options
	logger *slog.Logger
	pauses common.PauseView

	mu     sync.Mutex
	buffer *events.Buffer

	sinksMu  sync.RWMutex
	sinks    []events.Emitter
	observer CallObserver

	tokens *token.Ledger
	pools  *pool.Registry
	escrow *votingescrow.Engine
	voter  *voter.Engine
	minter *minter.Engine
	rebase *rebase.Distributor
}

// NewNode opens the protocol over db.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	if opts.Token == "" {
		return nil, errors.New("core: emission token required")
	}
	if opts.Decimals == 0 {
		opts.Decimals = 18
	}
	if opts.Escrow.Token == "" {
		opts.Escrow.Token = opts.Token
	}
	if opts.Escrow.Epoch == 0 {
		opts.Escrow = votingescrow.DefaultParams(opts.Token)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() int64 { return time.Now().Unix() }
	}
	if opts.Accrual.Duration == 0 {
		opts.Accrual.Duration = opts.Escrow.Epoch
	}
	if opts.Schedule.Initial == nil {
		opts.Schedule = minter.DefaultSchedule()
	}

	n := &Node{
		db:     db,
		state:  state.NewManager(db),
		opts:   opts,
		logger: opts.Logger.With("component", "node"),
		pauses: common.NewPauseSet(opts.Paused),
		buffer: &events.Buffer{},
	}

	n.tokens = token.NewLedger(n.state)
	n.tokens.SetEmitter(n.buffer)
	if !n.tokens.Exists(opts.Token) {
		if err := n.tokens.Register(opts.Token, opts.Decimals, minter.Address()); err != nil {
			return nil, fmt.Errorf("core: register emission token: %w", err)
		}
	}
	n.pools = pool.NewRegistry(n.state, n.tokens)

	escrow, err := votingescrow.NewEngine(n.state, n.tokens, opts.Escrow)
	if err != nil {
		return nil, err
	}
	escrow.SetNowFunc(opts.Now)
	escrow.SetEmitter(n.buffer)
	n.escrow = escrow

	n.voter = voter.New(voter.Deps{
		State:       n.state,
		Tokens:      n.tokens,
		Escrow:      escrow,
		Pools:       n.pools,
		Emitter:     n.buffer,
		Now:         opts.Now,
		RewardToken: opts.Token,
		Accrual:     opts.Accrual,
	})

	n.rebase = rebase.New(n.state, n.tokens, escrow, opts.Token, opts.Escrow.Epoch)
	n.rebase.SetNowFunc(opts.Now)
	n.rebase.SetEmitter(n.buffer)

	m, err := minter.New(minter.Deps{
		State:    n.state,
		Tokens:   n.tokens,
		Escrow:   escrow,
		Voter:    n.voter,
		Rebase:   n.rebase,
		Emitter:  n.buffer,
		Now:      opts.Now,
		Token:    opts.Token,
		Admin:    opts.Admin,
		Epoch:    opts.Escrow.Epoch,
		MaxLock:  opts.Escrow.MaxLock,
		Schedule: opts.Schedule,
	})
	if err != nil {
		return nil, err
	}
	n.minter = m
	n.voter.SetMinter(m)
	return n, nil
}

// Subscribe registers a sink receiving every event of committed calls.
func (n *Node) Subscribe(sink events.Emitter) {
	if sink == nil {
		return
	}
	n.sinksMu.Lock()
	n.sinks = append(n.sinks, sink)
	n.sinksMu.Unlock()
}

// SetObserver installs the call observer, typically the metrics registry.
func (n *Node) SetObserver(observer CallObserver) {
	n.sinksMu.Lock()
	n.observer = observer
	n.sinksMu.Unlock()
}

// Now returns the node clock.
func (n *Node) Now() int64 { return n.opts.Now() }

// Options returns the options the node was built with.
func (n *Node) Options() Options { return n.opts }

// Admin returns the protocol administrator.
func (n *Node) Admin() [20]byte { return n.opts.Admin }

func (n *Node) requireAdmin(caller [20]byte) error {
	if n.opts.Admin == ([20]byte{}) || caller != n.opts.Admin {
		return fmt.Errorf("%w: admin only", coreerrors.ErrUnauthorized)
	}
	return nil
}

// exec runs fn as one atomic call: any error discards every write and event
// made by fn.
func (n *Node) exec(module, op string, fn func() error) error {
	start := time.Now()
	err := n.run(module, fn)
	n.sinksMu.RLock()
	observer := n.observer
	n.sinksMu.RUnlock()
	if observer != nil {
		observer.ObserveCall(module, op, err, time.Since(start))
	}
	if err != nil {
		n.logger.Debug("call rejected", "module", module, "op", op, "error", err)
	}
	return err
}

func (n *Node) run(module string, fn func() error) error {
	if err := common.Guard(n.pauses, module); err != nil {
		return fmt.Errorf("%s: %w", module, err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.state.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		n.state.Rollback()
		n.buffer.Drain()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Rollback()
		n.buffer.Drain()
		return err
	}
	n.publish(n.buffer.Drain())
	return nil
}

// view runs a read under the node lock so it never observes a call midway.
func (n *Node) view(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn()
}

func (n *Node) publish(pending []events.Event) {
	if len(pending) == 0 {
		return
	}
	n.sinksMu.RLock()
	sinks := append([]events.Emitter(nil), n.sinks...)
	n.sinksMu.RUnlock()
	for _, evt := range pending {
		for _, sink := range sinks {
			sink.Emit(evt)
		}
	}
}

// Payload renders evt in its wire form, nil when it has none.
func Payload(evt events.Event) *types.Event {
	payload, ok := evt.(events.Payloader)
	if !ok {
		return nil
	}
	return payload.Event()
}

// Close releases the database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
