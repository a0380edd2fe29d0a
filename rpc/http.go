package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vedex/core"
	"vedex/observability"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	defaultSignatureMaxAge = 5 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateCall  = -32010
	codeRateLimited    = -32020
	codeNotOwner       = -32030
	codeNotFound       = -32031
	codeConflict       = -32032
	codeInsufficient   = -32033
	codeCatchUp        = -32034
	codePaused         = -32035
	codeRateOverflow   = -32036
)

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	MaxBodyBytes      int64
	SignatureMaxAge   time.Duration
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	Logger            *slog.Logger
	// Events serves events_query when set.
	Events EventStore
	// Replay defaults to an in-memory cache.
	Replay ReplayCache
}

// Server exposes a core.Node over JSON-RPC 2.0 and streams committed events
// over websocket.
type Server struct {
	node   *core.Node
	cfg    ServerConfig
	logger *slog.Logger
	hub    *EventHub
	now    func() time.Time
	replay ReplayCache
}

// NewServer builds a server over node and subscribes its event hub to the
// node's committed events.
func NewServer(node *core.Node, cfg ServerConfig) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	if cfg.SignatureMaxAge <= 0 {
		cfg.SignatureMaxAge = defaultSignatureMaxAge
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	replay := cfg.Replay
	if replay == nil {
		replay = newMemoryReplay(2 * cfg.SignatureMaxAge)
	}
	srv := &Server{
		node:   node,
		cfg:    cfg,
		logger: logger,
		hub:    NewEventHub(),
		now:    time.Now,
		replay: replay,
	}
	node.Subscribe(srv.hub)
	return srv, nil
}

// Hub returns the websocket event hub.
func (s *Server) Hub() *EventHub { return s.hub }

// Handler routes JSON-RPC calls on / and the event stream on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleEventsWS)
	mux.HandleFunc("/", s.handle)
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
	Auth    *Signature        `json:"auth,omitempty"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
		return
	}

	start := time.Now()
	code := 0
	defer func() {
		observability.ModuleMetrics().Observe(m.module, req.Method, code, time.Since(start))
	}()

	c := &call{ctx: r.Context(), method: req.Method}
	if len(req.Params) > 1 {
		code = codeInvalidParams
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one parameter object allowed", nil)
		return
	}
	if len(req.Params) == 1 {
		c.params = req.Params[0]
	}
	if m.signed {
		caller, rpcErr := s.authenticate(req.Method, c.params, req.Auth)
		if rpcErr != nil {
			code = rpcErr.Code
			status := http.StatusUnauthorized
			switch rpcErr.Code {
			case codeDuplicateCall:
				status = http.StatusConflict
			case codeServerError:
				status = http.StatusInternalServerError
			}
			observability.ModuleMetrics().RecordThrottle(m.module, "unauthorized")
			writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		c.caller = caller
	}

	result, err := m.handler(s, c)
	if err != nil {
		status, errCode, message := errorStatus(err)
		code = errCode
		if status == http.StatusInternalServerError {
			s.logger.Error("rpc call failed", slog.String("method", req.Method), slog.Any("error", err))
		}
		writeError(w, status, req.ID, errCode, message, nil)
		return
	}
	writeResult(w, req.ID, result)
}

// call is one decoded request handed to a method handler.
type call struct {
	ctx    context.Context
	method string
	params json.RawMessage
	caller [20]byte
}

// decode unmarshals the parameter object into dst. A missing object decodes
// as empty.
func (c *call) decode(dst interface{}) error {
	if len(c.params) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(c.params))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return invalidParams("invalid parameter object: %v", err)
	}
	return nil
}

type handlerFunc func(s *Server, c *call) (interface{}, error)

type method struct {
	module  string
	signed  bool
	handler handlerFunc
}

var methods map[string]method

func register(table map[string]method) {
	if methods == nil {
		methods = make(map[string]method)
	}
	for name, m := range table {
		if _, exists := methods[name]; exists {
			panic("rpc: duplicate method " + name)
		}
		methods[name] = m
	}
}

// Methods lists every registered method name with its module.
func Methods() map[string]string {
	out := make(map[string]string, len(methods))
	for name, m := range methods {
		out[name] = m.module
	}
	return out
}

// Signed reports whether method requires a signed caller.
func Signed(method string) bool {
	m, ok := methods[method]
	return ok && m.signed
}
