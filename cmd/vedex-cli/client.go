package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vedex/crypto"
	"vedex/rpc"
)

const defaultEndpoint = "http://127.0.0.1:8545"

// callError is an error reported by the server in the JSON-RPC envelope.
type callError struct {
	Status  int
	Code    int
	Message string
}

func (e *callError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

type rpcClient struct {
	endpoint string
	bearer   string
	http     *http.Client
	now      func() time.Time
	nextID   int
}

func newRPCClient(endpoint, bearer string) *rpcClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	return &rpcClient{
		endpoint: endpoint,
		bearer:   strings.TrimSpace(bearer),
		http:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}
}

// call posts one JSON-RPC request. When signer is set the call carries a
// signature over the method, the current time and the parameter object.
func (c *rpcClient) call(method string, params interface{}, signer *crypto.PrivateKey) (json.RawMessage, error) {
	c.nextID++
	req := rpc.RPCRequest{JSONRPC: "2.0", Method: method, ID: c.nextID}
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		raw = encoded
		req.Params = []json.RawMessage{raw}
	}
	if signer != nil {
		sig, err := rpc.SignCall(signer, method, c.now().Unix(), raw)
		if err != nil {
			return nil, err
		}
		req.Auth = sig
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return nil, &callError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return envelope.Result, nil
}

func isCallError(err error) bool {
	var ce *callError
	return errors.As(err, &ce)
}
