package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"vedex/crypto"
)

func init() {
	register("key new", "create a keystore for signing calls", runKeyNew)
	register("key show", "print the keystore address", runKeyShow)

	register("lock create", "lock tokens: --amount --duration", runLockCreate)
	register("lock increase", "add tokens to a lock: --id --amount", lockAmountCmd("ve_increaseAmount"))
	register("lock deposit-for", "add tokens to any lock: --id --amount", lockAmountCmd("ve_depositFor"))
	register("lock extend", "extend a lock: --id --duration", runLockExtend)
	register("lock merge", "merge two locks: --from --into", runLockMerge)
	register("lock withdraw", "withdraw an expired lock: --id", lockIDCmd("ve_withdraw", true))
	register("lock transfer", "transfer a lock: --id --to", runLockTransfer)
	register("lock get", "show a lock: --id", lockIDCmd("ve_getPosition", false))
	register("lock list", "list locks: [--owner]", runLockList)
	register("lock power", "voting power: [--id] [--at]", runLockPower)

	register("vote cast", "vote: --id --votes pool=weight,...", runVoteCast)
	register("vote reset", "clear a ballot: --id", lockIDCmd("voter_reset", true))
	register("vote poke", "recompute a ballot: --id", lockIDCmd("voter_poke", false))
	register("vote show", "show a ballot: --id", lockIDCmd("voter_votes", false))

	register("gauge deposit", "stake LP: --pool --amount [--position]", stakeCmd("gauge_deposit"))
	register("gauge withdraw", "unstake LP: --pool --amount", stakeCmd("gauge_withdraw"))
	register("gauge claim", "claim gauge rewards: --pools --tokens", runGaugeClaim)
	register("gauge earned", "pending reward: --pool --token [--account]", runGaugeEarned)
	register("gauge info", "gauge summary: --pool", runGaugeInfo)

	register("bribe notify", "fund a bribe: --pool --token --amount", runBribeNotify)
	register("bribe claim", "claim bribes: --id --pools --tokens", runBribeClaim)

	register("epoch status", "minter state and whether an epoch is due", runEpochStatus)
	register("epoch distribute", "tick the minter and distribute: [--pools]", runEpochDistribute)
	register("rebase claim", "claim the rebase: --id [--max-weeks]", runRebaseClaim)

	register("events", "query indexed events", runEvents)
	register("call", "raw call: <method> [json-params] [--sign]", runRawCall)
}

func runKeyNew(a *app, args []string) error {
	fs := a.flags("key new")
	light := fs.Bool("light", false, "use the fast scrypt cost (dev only)")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	if _, err := os.Stat(a.keystore); err == nil && !*force {
		return fmt.Errorf("keystore %s exists; pass --force to replace it", a.keystore)
	}
	pass, err := a.pass.GetConfirmed()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	cost := crypto.StandardCost
	if *light {
		cost = crypto.LightCost
	}
	if err := crypto.SaveToKeystoreWithCost(a.keystore, key, pass, cost); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, key.PubKey().Address().String())
	return nil
}

func runKeyShow(a *app, args []string) error {
	fs := a.flags("key show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := a.address()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, addr)
	return nil
}

func runLockCreate(a *app, args []string) error {
	fs := a.flags("lock create")
	amount := fs.String("amount", "", "amount in base units (1.5e18 shorthand allowed)")
	duration := fs.String("duration", "", "lock duration, e.g. 52w or 720h")
	if err := fs.Parse(args); err != nil {
		return err
	}
	value, err := normalizeAmount(*amount)
	if err != nil {
		return err
	}
	seconds, err := parseLockDuration(*duration)
	if err != nil {
		return err
	}
	return a.send("ve_createLock", map[string]interface{}{"amount": value, "duration": seconds}, true)
}

func lockAmountCmd(method string) func(a *app, args []string) error {
	return func(a *app, args []string) error {
		fs := a.flags(method)
		id := fs.Uint64("id", 0, "lock id")
		amount := fs.String("amount", "", "amount in base units")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			return errors.New("--id is required")
		}
		value, err := normalizeAmount(*amount)
		if err != nil {
			return err
		}
		return a.send(method, map[string]interface{}{"id": *id, "amount": value}, true)
	}
}

func lockIDCmd(method string, signed bool) func(a *app, args []string) error {
	return func(a *app, args []string) error {
		fs := a.flags(method)
		id := fs.Uint64("id", 0, "lock id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			return errors.New("--id is required")
		}
		return a.send(method, map[string]uint64{"id": *id}, signed)
	}
}

func runLockExtend(a *app, args []string) error {
	fs := a.flags("lock extend")
	id := fs.Uint64("id", 0, "lock id")
	duration := fs.String("duration", "", "new duration from now, e.g. 104w")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("--id is required")
	}
	seconds, err := parseLockDuration(*duration)
	if err != nil {
		return err
	}
	return a.send("ve_increaseDuration", map[string]uint64{"id": *id, "duration": seconds}, true)
}

func runLockMerge(a *app, args []string) error {
	fs := a.flags("lock merge")
	from := fs.Uint64("from", 0, "lock consumed by the merge")
	into := fs.Uint64("into", 0, "lock receiving the amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == 0 || *into == 0 {
		return errors.New("--from and --into are required")
	}
	return a.send("ve_merge", map[string]uint64{"from": *from, "into": *into}, true)
}

func runLockTransfer(a *app, args []string) error {
	fs := a.flags("lock transfer")
	id := fs.Uint64("id", 0, "lock id")
	to := fs.String("to", "", "recipient address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 || strings.TrimSpace(*to) == "" {
		return errors.New("--id and --to are required")
	}
	return a.send("ve_transfer", map[string]interface{}{"id": *id, "to": strings.TrimSpace(*to)}, true)
}

func runLockList(a *app, args []string) error {
	fs := a.flags("lock list")
	owner := fs.String("owner", "", "owner address (defaults to the keystore account)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr := strings.TrimSpace(*owner)
	if addr == "" {
		var err error
		if addr, err = a.address(); err != nil {
			return err
		}
	}
	return a.send("ve_positionsOf", map[string]string{"owner": addr}, false)
}

func runLockPower(a *app, args []string) error {
	fs := a.flags("lock power")
	id := fs.Uint64("id", 0, "lock id; omit for the total")
	at := fs.Uint64("at", 0, "unix timestamp; omit for now")
	if err := fs.Parse(args); err != nil {
		return err
	}
	params := map[string]uint64{}
	if *at > 0 {
		params["timestamp"] = *at
	}
	if *id == 0 {
		return a.send("ve_totalVotingPower", params, false)
	}
	params["id"] = *id
	return a.send("ve_votingPower", params, false)
}

func runVoteCast(a *app, args []string) error {
	fs := a.flags("vote cast")
	id := fs.Uint64("id", 0, "lock id")
	votes := fs.String("votes", "", "comma separated pool=weight pairs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("--id is required")
	}
	pools, weights, err := parseWeights(*votes)
	if err != nil {
		return err
	}
	return a.send("voter_vote", map[string]interface{}{"id": *id, "pools": pools, "weights": weights}, true)
}

func stakeCmd(method string) func(a *app, args []string) error {
	return func(a *app, args []string) error {
		fs := a.flags(method)
		pool := fs.String("pool", "", "pool id")
		amount := fs.String("amount", "", "LP amount in base units")
		position := fs.Uint64("position", 0, "lock id boosting the stake")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*pool) == "" {
			return errors.New("--pool is required")
		}
		value, err := normalizeAmount(*amount)
		if err != nil {
			return err
		}
		params := map[string]interface{}{"pool": strings.TrimSpace(*pool), "amount": value}
		if *position > 0 {
			params["positionId"] = *position
		}
		return a.send(method, params, true)
	}
}

func runGaugeClaim(a *app, args []string) error {
	fs := a.flags("gauge claim")
	pools := fs.String("pools", "", "comma separated pool ids")
	tokens := fs.String("tokens", "", "comma separated reward tokens")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.send("gauge_claimRewards", map[string][]string{"pools": splitList(*pools), "tokens": splitList(*tokens)}, true)
}

func runGaugeEarned(a *app, args []string) error {
	fs := a.flags("gauge earned")
	pool := fs.String("pool", "", "pool id")
	token := fs.String("token", "", "reward token")
	account := fs.String("account", "", "account (defaults to the keystore account)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr := strings.TrimSpace(*account)
	if addr == "" {
		var err error
		if addr, err = a.address(); err != nil {
			return err
		}
	}
	return a.send("gauge_earned", map[string]string{"pool": *pool, "token": *token, "account": addr}, false)
}

func runGaugeInfo(a *app, args []string) error {
	fs := a.flags("gauge info")
	pool := fs.String("pool", "", "pool id; omit to list gauged pools")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*pool) == "" {
		return a.send("voter_gauges", nil, false)
	}
	return a.send("voter_getGauge", map[string]string{"pool": strings.TrimSpace(*pool)}, false)
}

func runBribeNotify(a *app, args []string) error {
	fs := a.flags("bribe notify")
	pool := fs.String("pool", "", "pool id")
	token := fs.String("token", "", "bribe token")
	amount := fs.String("amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	value, err := normalizeAmount(*amount)
	if err != nil {
		return err
	}
	return a.send("bribe_notifyReward", map[string]string{"pool": *pool, "token": *token, "amount": value}, true)
}

func runBribeClaim(a *app, args []string) error {
	fs := a.flags("bribe claim")
	id := fs.Uint64("id", 0, "lock id")
	pools := fs.String("pools", "", "comma separated pool ids")
	tokens := fs.String("tokens", "", "comma separated bribe tokens")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("--id is required")
	}
	return a.send("bribe_claim", map[string]interface{}{
		"id":     *id,
		"pools":  splitList(*pools),
		"tokens": splitList(*tokens),
	}, true)
}

func runEpochStatus(a *app, args []string) error {
	fs := a.flags("epoch status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	state, err := a.fetch("minter_state", nil, false)
	if err != nil {
		return err
	}
	due, err := a.fetch("minter_due", nil, false)
	if err != nil {
		return err
	}
	combined, err := json.Marshal(map[string]json.RawMessage{"minter": state, "due": due})
	if err != nil {
		return err
	}
	return a.print(combined)
}

func runEpochDistribute(a *app, args []string) error {
	fs := a.flags("epoch distribute")
	pools := fs.String("pools", "", "comma separated pool ids; omit for every gauge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.send("voter_distribute", map[string][]string{"pools": splitList(*pools)}, false)
}

func runRebaseClaim(a *app, args []string) error {
	fs := a.flags("rebase claim")
	id := fs.Uint64("id", 0, "lock id")
	maxWeeks := fs.Int("max-weeks", 0, "weeks processed per call; 0 for the default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("--id is required")
	}
	return a.send("rebase_claim", map[string]interface{}{"id": *id, "maxWeeks": *maxWeeks}, false)
}

func runEvents(a *app, args []string) error {
	fs := a.flags("events")
	eventType := fs.String("type", "", "event type, or a prefix ending in '.'")
	position := fs.Uint64("position", 0, "lock id")
	pool := fs.String("pool", "", "pool id")
	account := fs.String("account", "", "account address")
	after := fs.Uint64("after", 0, "return events after this sequence number")
	limit := fs.Int("limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	params := map[string]interface{}{}
	if *eventType != "" {
		params["type"] = *eventType
	}
	if *position > 0 {
		params["position"] = *position
	}
	if *pool != "" {
		params["pool"] = *pool
	}
	if *account != "" {
		params["account"] = *account
	}
	if *after > 0 {
		params["afterSeq"] = *after
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	return a.send("events_query", params, false)
}

func runRawCall(a *app, args []string) error {
	fs := a.flags("call")
	sign := fs.Bool("sign", false, "sign the call with the keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: call [--sign] <method> [json-params]")
	}
	var params interface{}
	if fs.NArg() == 2 {
		raw := json.RawMessage(fs.Arg(1))
		if !json.Valid(raw) {
			return errors.New("params must be valid JSON")
		}
		params = raw
	}
	return a.send(fs.Arg(0), params, *sign)
}
