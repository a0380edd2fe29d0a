package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"vedex/cmd/internal/passphrase"
	"vedex/crypto"
)

const (
	rpcURLEnv      = "VEDEX_RPC_URL"
	keystoreEnv    = "VEDEX_KEYSTORE"
	bearerEnv      = "VEDEX_GATEWAY_TOKEN"
	passphraseEnv  = "VEDEX_KEYSTORE_PASSPHRASE"
	defaultKeyPath = "./vedex.keystore"
)

type command struct {
	usage string
	run   func(a *app, args []string) error
}

// commands is keyed by "group sub" or by a single word for top-level
// commands.
var commands = map[string]command{}

func register(name, usage string, run func(a *app, args []string) error) {
	if _, exists := commands[name]; exists {
		panic("vedex-cli: duplicate command " + name)
	}
	commands[name] = command{usage: usage, run: run}
}

type app struct {
	stdout   io.Writer
	stderr   io.Writer
	client   *rpcClient
	keystore string
	pass     *passphrase.Source
	signer   *crypto.PrivateKey
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vedex-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("rpc", envOr(rpcURLEnv, defaultEndpoint), "JSON-RPC endpoint (node or gateway /rpc)")
	keystore := fs.String("keystore", envOr(keystoreEnv, defaultKeyPath), "keystore signing the calls")
	bearer := fs.String("bearer", os.Getenv(bearerEnv), "gateway bearer token")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	name, cmdArgs := rest[0], rest[1:]
	if len(rest) > 1 {
		if _, ok := commands[rest[0]+" "+rest[1]]; ok {
			name, cmdArgs = rest[0]+" "+rest[1], rest[2:]
		}
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", strings.Join(rest, " "))
		printUsage(stderr)
		return 2
	}

	a := &app{
		stdout:   stdout,
		stderr:   stderr,
		client:   newRPCClient(*endpoint, *bearer),
		keystore: *keystore,
		pass:     passphrase.NewSource(passphraseEnv, "keystore"),
	}
	if err := cmd.run(a, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if isCallError(err) {
			return 3
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vedex-cli [--rpc URL] [--keystore PATH] [--bearer TOKEN] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].usage)
	}
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// signerKey decrypts the keystore once per invocation.
func (a *app) signerKey() (*crypto.PrivateKey, error) {
	if a.signer != nil {
		return a.signer, nil
	}
	pass, err := a.pass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(a.keystore, pass)
	if err != nil {
		return nil, err
	}
	a.signer = key
	return key, nil
}

// address reports the keystore account without decrypting it.
func (a *app) address() (string, error) {
	addr, err := crypto.KeystoreAddress(a.keystore)
	if err != nil {
		return "", fmt.Errorf("keystore %s: %w", a.keystore, err)
	}
	return addr.String(), nil
}

func (a *app) send(method string, params interface{}, signed bool) error {
	result, err := a.fetch(method, params, signed)
	if err != nil {
		return err
	}
	return a.print(result)
}

func (a *app) fetch(method string, params interface{}, signed bool) (json.RawMessage, error) {
	var signer *crypto.PrivateKey
	if signed {
		key, err := a.signerKey()
		if err != nil {
			return nil, err
		}
		signer = key
	}
	return a.client.call(method, params, signer)
}

func (a *app) print(result json.RawMessage) error {
	if len(result) == 0 {
		fmt.Fprintln(a.stdout, "null")
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, result, "", "  "); err != nil {
		_, werr := a.stdout.Write(append(result, '\n'))
		return werr
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(a.stdout)
	return err
}

func noArgs(fs *flag.FlagSet) error {
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}
