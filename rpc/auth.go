package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vedex/crypto"
)

const signatureDomain = "vedex-rpc-v1"

// Signature authenticates a state-changing call. The caller signs the
// keccak256 digest of the method, timestamp and compact parameter object.
type Signature struct {
	Caller    string `json:"caller"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// CallDigest returns the digest signed for a call.
func CallDigest(method string, timestamp int64, params json.RawMessage) ([]byte, error) {
	var compact bytes.Buffer
	if len(bytes.TrimSpace(params)) > 0 {
		if err := json.Compact(&compact, params); err != nil {
			return nil, fmt.Errorf("compact params: %w", err)
		}
	}
	return ethcrypto.Keccak256(
		[]byte(signatureDomain),
		[]byte{0},
		[]byte(method),
		[]byte{0},
		[]byte(strconv.FormatInt(timestamp, 10)),
		[]byte{0},
		compact.Bytes(),
	), nil
}

// SignCall signs a call with key at timestamp.
func SignCall(key *crypto.PrivateKey, method string, timestamp int64, params json.RawMessage) (*Signature, error) {
	if key == nil {
		return nil, errors.New("rpc: signing key required")
	}
	digest, err := CallDigest(method, timestamp, params)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &Signature{
		Caller:    key.PubKey().Address().String(),
		Timestamp: timestamp,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

func (s *Server) authenticate(method string, params json.RawMessage, auth *Signature) ([20]byte, *RPCError) {
	var zero [20]byte
	if auth == nil {
		return zero, &RPCError{Code: codeUnauthorized, Message: "signed call required"}
	}
	claimed, err := crypto.DecodeAddress(strings.TrimSpace(auth.Caller))
	if err != nil {
		return zero, &RPCError{Code: codeUnauthorized, Message: "invalid caller address", Data: err.Error()}
	}
	now := s.now()
	signedAt := time.Unix(auth.Timestamp, 0)
	age := now.Sub(signedAt)
	if age < 0 {
		age = -age
	}
	if age > s.cfg.SignatureMaxAge {
		return zero, &RPCError{Code: codeUnauthorized, Message: "signature timestamp outside allowed window"}
	}
	sigHex := strings.TrimPrefix(strings.TrimSpace(auth.Signature), "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return zero, &RPCError{Code: codeUnauthorized, Message: "malformed signature"}
	}
	digest, err := CallDigest(method, auth.Timestamp, params)
	if err != nil {
		return zero, &RPCError{Code: codeUnauthorized, Message: "invalid parameter object", Data: err.Error()}
	}
	recovered, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return zero, &RPCError{Code: codeUnauthorized, Message: "signature recovery failed", Data: err.Error()}
	}
	if recovered != claimed.Raw() {
		return zero, &RPCError{Code: codeUnauthorized, Message: "signature does not match caller"}
	}
	fresh, err := s.rememberCall(recovered, digest, now)
	if err != nil {
		s.logger.Error("replay cache failure", "method", method, "error", err)
		return zero, &RPCError{Code: codeServerError, Message: "replay protection unavailable"}
	}
	if !fresh {
		return zero, &RPCError{Code: codeDuplicateCall, Message: "call has already been submitted"}
	}
	return recovered, nil
}

// rememberCall reports whether caller has not yet submitted the call with
// this digest. Keying on the digest rather than the signature bytes means a
// re-encoded signature over the same call is still a duplicate.
func (s *Server) rememberCall(caller [20]byte, digest []byte, now time.Time) (bool, error) {
	return s.replay.Remember(hex.EncodeToString(caller[:])+":"+hex.EncodeToString(digest), now)
}
