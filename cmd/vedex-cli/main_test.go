package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"vedex/core"
	"vedex/crypto"
	"vedex/native/minter"
	"vedex/rpc"
	"vedex/storage"
)

type cliEnv struct {
	url      string
	keystore string
	address  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keystore := filepath.Join(t.TempDir(), "admin.keystore")
	if err := crypto.SaveToKeystoreWithCost(keystore, key, "cli-pass", crypto.LightCost); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	t.Setenv(passphraseEnv, "cli-pass")

	schedule := minter.DefaultSchedule()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Token:    "VE",
		Admin:    key.PubKey().Address().Raw(),
		Schedule: schedule,
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	t.Cleanup(node.Close)
	srv, err := rpc.NewServer(node, rpc.ServerConfig{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &cliEnv{url: ts.URL, keystore: keystore, address: key.PubKey().Address().String()}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--rpc", e.url, "--keystore", e.keystore}, args...)
	code := run(full, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := e.run(t, args...)
	if code != 0 {
		t.Fatalf("%s: exit %d: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

func TestKeyShowReadsKeystore(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "key", "show")
	if strings.TrimSpace(out) != env.address {
		t.Fatalf("expected %s, got %q", env.address, out)
	}
}

func TestKeyNewRefusesOverwrite(t *testing.T) {
	env := newCLIEnv(t)
	_, errOut, code := env.run(t, "key", "new", "--light")
	if code == 0 || !strings.Contains(errOut, "exists") {
		t.Fatalf("expected refusal, got %d %q", code, errOut)
	}

	fresh := filepath.Join(t.TempDir(), "fresh.keystore")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--keystore", fresh, "key", "new", "--light"}, &stdout, &stderr); code != 0 {
		t.Fatalf("key new: %d %s", code, stderr.String())
	}
	addr, err := crypto.KeystoreAddress(fresh)
	if err != nil {
		t.Fatalf("read new keystore: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != addr.String() {
		t.Fatalf("printed %q, keystore holds %s", stdout.String(), addr)
	}
}

func TestLockLifecycleThroughCLI(t *testing.T) {
	env := newCLIEnv(t)
	amount := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	initParams := fmt.Sprintf(`{"recipients":["%s"],"amounts":["%s"]}`, env.address, amount)
	env.mustRun(t, "call", "--sign", "minter_initialize", initParams)

	var ids []uint64
	if err := json.Unmarshal([]byte(env.mustRun(t, "lock", "list")), &ids); err != nil {
		t.Fatalf("decode lock list: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one lock, got %v", ids)
	}

	var position map[string]interface{}
	out := env.mustRun(t, "lock", "get", "--id", fmt.Sprint(ids[0]))
	if err := json.Unmarshal([]byte(out), &position); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if position["owner"] != env.address {
		t.Fatalf("unexpected owner %v", position["owner"])
	}

	var status map[string]json.RawMessage
	if err := json.Unmarshal([]byte(env.mustRun(t, "epoch", "status")), &status); err != nil {
		t.Fatalf("decode epoch status: %v", err)
	}
	if _, ok := status["minter"]; !ok {
		t.Fatalf("missing minter state in %v", status)
	}
}

func TestRPCErrorsExitWithCallCode(t *testing.T) {
	env := newCLIEnv(t)
	_, errOut, code := env.run(t, "lock", "get", "--id", "42")
	if code != 3 || !strings.Contains(errOut, "RPC error") {
		t.Fatalf("expected rpc failure, got %d %q", code, errOut)
	}
	_, _, code = env.run(t, "lock", "get")
	if code != 1 {
		t.Fatalf("expected usage failure, got %d", code)
	}
	_, _, code = env.run(t, "nonsense")
	if code != 2 {
		t.Fatalf("expected unknown command, got %d", code)
	}
}

func TestNormalizeAmount(t *testing.T) {
	cases := map[string]string{
		"1":       "1",
		"1e18":    "1000000000000000000",
		"1.5e3":   "1500",
		"2_000":   "2000",
		"0.10e2":  "10",
		"+7":      "7",
		"007":     "7",
		"1.250e3": "1250",
	}
	for in, want := range cases {
		got, err := normalizeAmount(in)
		if err != nil || got != want {
			t.Fatalf("normalizeAmount(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "-1", "1.5", "abc", "1e", "0"} {
		if _, err := normalizeAmount(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	secs, err := parseLockDuration("2w")
	if err != nil || secs != 2*604800 {
		t.Fatalf("2w = %d, %v", secs, err)
	}
	secs, err = parseLockDuration("48h")
	if err != nil || secs != 172800 {
		t.Fatalf("48h = %d, %v", secs, err)
	}
	if _, err := parseLockDuration("0w"); err == nil {
		t.Fatalf("expected error for 0w")
	}
	pools, weights, err := parseWeights("0xaa=3, 0xbb=1e2")
	if err != nil || len(pools) != 2 || weights[1] != "100" {
		t.Fatalf("parseWeights: %v %v %v", pools, weights, err)
	}
	if _, _, err := parseWeights("0xaa"); err == nil {
		t.Fatalf("expected error for missing weight")
	}
}
