package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vedex/core"
	"vedex/crypto"
	"vedex/native/minter"
	"vedex/storage"
)

var testUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func units(n int64) string { return new(big.Int).Mul(testUnit, big.NewInt(n)).String() }

type testEnv struct {
	srv   *Server
	node  *core.Node
	admin *crypto.PrivateKey
	alice *crypto.PrivateKey
	bob   *crypto.PrivateKey
	now   int64
}

func newTestKey(t testing.TB) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	env := &testEnv{
		admin: newTestKey(t),
		alice: newTestKey(t),
		bob:   newTestKey(t),
		now:   1_700_000_000,
	}
	schedule := minter.DefaultSchedule()
	schedule.Initial, _ = new(big.Int).SetString(units(1_000), 10)
	schedule.Tail, _ = new(big.Int).SetString(units(10), 10)
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Token:    "VE",
		Admin:    env.admin.PubKey().Address().Raw(),
		Schedule: schedule,
		Now:      func() int64 { return env.now },
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	t.Cleanup(node.Close)
	srv, err := NewServer(node, ServerConfig{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.node = node
	env.srv = srv
	return env
}

func marshalParam(t testing.TB, value interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return raw
}

func buildRequest(t testing.TB, method string, params interface{}, key *crypto.PrivateKey, ts int64) *RPCRequest {
	t.Helper()
	req := &RPCRequest{JSONRPC: jsonRPCVersion, Method: method, ID: 1}
	var raw json.RawMessage
	if params != nil {
		raw = marshalParam(t, params)
		req.Params = []json.RawMessage{raw}
	}
	if key != nil {
		sig, err := SignCall(key, method, ts, raw)
		if err != nil {
			t.Fatalf("sign call: %v", err)
		}
		req.Auth = sig
	}
	return req
}

func (env *testEnv) send(t testing.TB, req *RPCRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	recorder := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	return recorder
}

// call signs with key when it is non-nil and returns the decoded response.
func (env *testEnv) call(t testing.TB, method string, params interface{}, key *crypto.PrivateKey) (RPCResponse, int) {
	t.Helper()
	recorder := env.send(t, buildRequest(t, method, params, key, time.Now().Unix()))
	return decodeRPCResponse(t, recorder), recorder.Code
}

// mustCall fails the test on any RPC error and decodes the result into out.
func (env *testEnv) mustCall(t testing.TB, method string, params interface{}, key *crypto.PrivateKey, out interface{}) {
	t.Helper()
	resp, status := env.call(t, method, params, key)
	if resp.Error != nil {
		t.Fatalf("%s: status %d error %+v", method, status, resp.Error)
	}
	if out == nil {
		return
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s result: %v", method, err)
	}
}

func decodeRPCResponse(t testing.TB, recorder *httptest.ResponseRecorder) RPCResponse {
	t.Helper()
	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, recorder.Body.String())
	}
	return resp
}

func addressOf(key *crypto.PrivateKey) string {
	return key.PubKey().Address().String()
}

// seed gives alice a 100 token lock and registers a gauged pool paying USDC.
func (env *testEnv) seed(t testing.TB) string {
	t.Helper()
	env.mustCall(t, "minter_initialize", map[string]interface{}{
		"recipients": []string{addressOf(env.alice)},
		"amounts":    []string{units(100)},
	}, env.admin, nil)
	env.mustCall(t, "token_register", map[string]interface{}{"symbol": "usdc", "decimals": 18}, env.admin, nil)
	poolID := "0xa100000000000000000000000000000000000000"
	env.mustCall(t, "pool_register", map[string]interface{}{
		"pool":   poolID,
		"token0": "VE",
		"token1": "USDC",
	}, env.admin, nil)
	env.mustCall(t, "voter_createGauge", map[string]string{"pool": poolID}, env.admin, nil)
	return poolID
}
