package rpc

import (
	"math/big"

	"vedex/core"
	"vedex/native/pool"
)

func init() {
	register(map[string]method{
		"voter_createGauge":    {module: core.ModuleVoter, signed: true, handler: handleCreateGauge},
		"voter_vote":           {module: core.ModuleVoter, signed: true, handler: handleVote},
		"voter_reset":          {module: core.ModuleVoter, signed: true, handler: handleReset},
		"voter_notifyReward":   {module: core.ModuleVoter, signed: true, handler: handleNotifyVoter},
		"voter_poke":           {module: core.ModuleVoter, handler: handlePoke},
		"voter_updateFor":      {module: core.ModuleVoter, handler: handleUpdateFor},
		"voter_distribute":     {module: core.ModuleVoter, handler: handleDistribute},
		"voter_distributeFees": {module: core.ModuleVoter, handler: handleDistributeFees},
		"voter_getGauge":       {module: core.ModuleVoter, handler: handleGetGauge},
		"voter_gauges":         {module: core.ModuleVoter, handler: handleGauges},
		"voter_votes":          {module: core.ModuleVoter, handler: handleVotes},
		"voter_totalWeight":    {module: core.ModuleVoter, handler: handleTotalWeight},
		"voter_usedWeight":     {module: core.ModuleVoter, handler: handleUsedWeight},
		"voter_claimable":      {module: core.ModuleVoter, handler: handleClaimable},
		"gauge_deposit":        {module: core.ModuleGauge, signed: true, handler: handleGaugeDeposit},
		"gauge_withdraw":       {module: core.ModuleGauge, signed: true, handler: handleGaugeWithdraw},
		"gauge_notifyReward":   {module: core.ModuleGauge, signed: true, handler: handleGaugeNotify},
		"gauge_claimRewards":   {module: core.ModuleGauge, signed: true, handler: handleClaimRewards},
		"gauge_earned":         {module: core.ModuleGauge, handler: handleGaugeEarned},
		"gauge_balance":        {module: core.ModuleGauge, handler: handleGaugeBalance},
		"bribe_notifyReward":   {module: core.ModuleBribe, signed: true, handler: handleBribeNotify},
		"bribe_claim":          {module: core.ModuleBribe, signed: true, handler: handleClaimBribes},
		"bribe_earned":         {module: core.ModuleBribe, handler: handleBribeEarned},
		"rewards_batchAdvance": {module: core.ModuleGauge, handler: handleBatchAdvance},
		"rewards_rate":         {module: core.ModuleGauge, handler: handleRewardRate},
		"rewards_tokens":       {module: core.ModuleGauge, handler: handleRewardTokens},
	})
}

type poolParams struct {
	Pool string `json:"pool"`
}

type positionPoolParams struct {
	ID   uint64 `json:"id"`
	Pool string `json:"pool"`
}

type poolsParams struct {
	Pools []string `json:"pools,omitempty"`
}

type voteParams struct {
	ID      uint64   `json:"id"`
	Pools   []string `json:"pools"`
	Weights []string `json:"weights"`
}

type amountParams struct {
	Amount string `json:"amount"`
}

type stakeParams struct {
	Pool       string `json:"pool"`
	Amount     string `json:"amount"`
	PositionID uint64 `json:"positionId,omitempty"`
}

type rewardParams struct {
	Pool   string `json:"pool"`
	Token  string `json:"token"`
	Amount string `json:"amount,omitempty"`
}

type claimParams struct {
	ID     uint64   `json:"id,omitempty"`
	Pools  []string `json:"pools"`
	Tokens []string `json:"tokens"`
}

type earnedParams struct {
	Pool       string `json:"pool"`
	Token      string `json:"token,omitempty"`
	Account    string `json:"account,omitempty"`
	PositionID uint64 `json:"positionId,omitempty"`
}

type advanceParams struct {
	Target   string `json:"target,omitempty"`
	Pool     string `json:"pool"`
	Token    string `json:"token,omitempty"`
	MaxSteps int    `json:"maxSteps,omitempty"`
}

type gaugeJSON struct {
	Pool        string `json:"pool"`
	Gauge       string `json:"gauge"`
	Bribe       string `json:"bribe"`
	CreatedAt   uint64 `json:"createdAt"`
	Weight      string `json:"weight"`
	Claimable   string `json:"claimable"`
	TotalStaked string `json:"totalStaked"`
	BribeWeight string `json:"bribeWeight"`
}

type ballotJSON struct {
	ID      uint64   `json:"id"`
	Pools   []string `json:"pools"`
	Weights []string `json:"weights"`
	Used    []string `json:"used"`
	Total   string   `json:"total"`
}

type cursorJSON struct {
	Token          string `json:"token"`
	LastUpdateTime uint64 `json:"lastUpdateTime"`
	Target         uint64 `json:"target"`
	Steps          int    `json:"steps"`
	Done           bool   `json:"done"`
}

func handleCreateGauge(s *Server, c *call) (interface{}, error) {
	var params poolParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	rec, err := s.node.CreateGauge(c.caller, id)
	if err != nil {
		return nil, err
	}
	return gaugeJSON{
		Pool:        rec.Pool.Hex(),
		Gauge:       formatModuleAddress(rec.Gauge),
		Bribe:       formatModuleAddress(rec.Bribe),
		CreatedAt:   rec.CreatedAt,
		Weight:      "0",
		Claimable:   "0",
		TotalStaked: "0",
		BribeWeight: "0",
	}, nil
}

func handleVote(s *Server, c *call) (interface{}, error) {
	var params voteParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	pools, err := parsePoolIDs(params.Pools)
	if err != nil {
		return nil, err
	}
	weights := make([]*big.Int, 0, len(params.Weights))
	for _, raw := range params.Weights {
		weight, err := parseBigInt("weight", raw)
		if err != nil {
			return nil, err
		}
		weights = append(weights, weight)
	}
	if err := s.node.Vote(c.caller, params.ID, pools, weights); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleReset(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	if err := s.node.Reset(c.caller, params.ID); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleNotifyVoter(s *Server, c *call) (interface{}, error) {
	var params amountParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.NotifyVoter(c.caller, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handlePoke(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	if err := s.node.Poke(params.ID); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleUpdateFor(s *Server, c *call) (interface{}, error) {
	var params poolsParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if len(params.Pools) == 0 {
		if err := s.node.UpdateAll(); err != nil {
			return nil, err
		}
		return okResult, nil
	}
	pools, err := parsePoolIDs(params.Pools)
	if err != nil {
		return nil, err
	}
	if err := s.node.UpdateFor(pools); err != nil {
		return nil, err
	}
	return okResult, nil
}

// handleDistribute ticks the minter and pushes to every gauge when no pools
// are named, otherwise pushes to the named pools only.
func handleDistribute(s *Server, c *call) (interface{}, error) {
	var params poolsParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if len(params.Pools) == 0 {
		if err := s.node.Distro(); err != nil {
			return nil, err
		}
		return okResult, nil
	}
	pools, err := parsePoolIDs(params.Pools)
	if err != nil {
		return nil, err
	}
	if err := s.node.DistributeFor(pools); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleDistributeFees(s *Server, c *call) (interface{}, error) {
	var params poolsParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	pools, err := parsePoolIDs(params.Pools)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		if pools, err = s.node.Gauges(); err != nil {
			return nil, err
		}
	}
	if err := s.node.DistributeFees(pools); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleGetGauge(s *Server, c *call) (interface{}, error) {
	var params poolParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	view, err := s.node.Gauge(id)
	if err != nil {
		return nil, err
	}
	return gaugeJSON{
		Pool:        view.Record.Pool.Hex(),
		Gauge:       formatModuleAddress(view.Record.Gauge),
		Bribe:       formatModuleAddress(view.Record.Bribe),
		CreatedAt:   view.Record.CreatedAt,
		Weight:      formatAmount(view.Weight),
		Claimable:   formatAmount(view.Claimable),
		TotalStaked: formatAmount(view.TotalStaked),
		BribeWeight: formatAmount(view.BribeWeight),
	}, nil
}

func handleGauges(s *Server, _ *call) (interface{}, error) {
	pools, err := s.node.Gauges()
	if err != nil {
		return nil, err
	}
	return formatPoolIDs(pools), nil
}

func handleVotes(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	ballot, err := s.node.Votes(params.ID)
	if err != nil {
		return nil, err
	}
	out := ballotJSON{ID: params.ID, Pools: []string{}, Weights: []string{}, Used: []string{}}
	if ballot == nil {
		out.Total = "0"
		return out, nil
	}
	out.Pools = formatPoolIDs(ballot.Pools)
	for _, w := range ballot.Weights {
		out.Weights = append(out.Weights, formatAmount(w))
	}
	for _, u := range ballot.Used {
		out.Used = append(out.Used, formatAmount(u))
	}
	out.Total = formatAmount(ballot.UsedTotal())
	return out, nil
}

func handleTotalWeight(s *Server, _ *call) (interface{}, error) {
	total, err := s.node.TotalWeight()
	if err != nil {
		return nil, err
	}
	return map[string]string{"weight": formatAmount(total)}, nil
}

func handleUsedWeight(s *Server, c *call) (interface{}, error) {
	var params positionPoolParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	used, err := s.node.UsedWeight(params.ID, id)
	if err != nil {
		return nil, err
	}
	return map[string]string{"weight": formatAmount(used)}, nil
}

// handleClaimable reports the emission snapshotted for a pool but not yet
// pushed into its gauge.
func handleClaimable(s *Server, c *call) (interface{}, error) {
	var params poolParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	claimable, err := s.node.Claimable(id)
	if err != nil {
		return nil, err
	}
	return map[string]string{"claimable": formatAmount(claimable)}, nil
}

func handleGaugeDeposit(s *Server, c *call) (interface{}, error) {
	var params stakeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.GaugeDeposit(c.caller, id, amount, params.PositionID); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleGaugeWithdraw(s *Server, c *call) (interface{}, error) {
	var params stakeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.GaugeWithdraw(c.caller, id, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func decodeReward(c *call) (pool.ID, string, *big.Int, error) {
	var params rewardParams
	if err := c.decode(&params); err != nil {
		return pool.ID{}, "", nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return pool.ID{}, "", nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return pool.ID{}, "", nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return pool.ID{}, "", nil, err
	}
	return id, symbol, amount, nil
}

func handleGaugeNotify(s *Server, c *call) (interface{}, error) {
	id, symbol, amount, err := decodeReward(c)
	if err != nil {
		return nil, err
	}
	if err := s.node.GaugeNotify(c.caller, id, symbol, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleBribeNotify(s *Server, c *call) (interface{}, error) {
	id, symbol, amount, err := decodeReward(c)
	if err != nil {
		return nil, err
	}
	if err := s.node.BribeNotify(c.caller, id, symbol, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func decodeClaim(c *call) (claimParams, []string, error) {
	var params claimParams
	if err := c.decode(&params); err != nil {
		return params, nil, err
	}
	if len(params.Pools) == 0 {
		return params, nil, invalidParams("pools required")
	}
	tokens, err := parseSymbols(params.Tokens)
	if err != nil {
		return params, nil, err
	}
	return params, tokens, nil
}

func handleClaimRewards(s *Server, c *call) (interface{}, error) {
	params, tokens, err := decodeClaim(c)
	if err != nil {
		return nil, err
	}
	pools, err := parsePoolIDs(params.Pools)
	if err != nil {
		return nil, err
	}
	paid, err := s.node.ClaimRewards(c.caller, pools, tokens)
	if err != nil {
		return nil, err
	}
	return formatAmounts(paid), nil
}

func handleClaimBribes(s *Server, c *call) (interface{}, error) {
	params, tokens, err := decodeClaim(c)
	if err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	pools, err := parsePoolIDs(params.Pools)
	if err != nil {
		return nil, err
	}
	paid, err := s.node.ClaimBribes(c.caller, params.ID, pools, tokens)
	if err != nil {
		return nil, err
	}
	return formatAmounts(paid), nil
}

func handleGaugeEarned(s *Server, c *call) (interface{}, error) {
	var params earnedParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return nil, err
	}
	account, err := parseBech32Address("account", params.Account)
	if err != nil {
		return nil, err
	}
	earned, err := s.node.GaugeEarned(id, symbol, account)
	if err != nil {
		return nil, err
	}
	return map[string]string{"earned": formatAmount(earned)}, nil
}

func handleGaugeBalance(s *Server, c *call) (interface{}, error) {
	var params earnedParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	account, err := parseBech32Address("account", params.Account)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.GaugeBalance(id, account)
	if err != nil {
		return nil, err
	}
	return map[string]string{"balance": formatAmount(balance)}, nil
}

func handleBribeEarned(s *Server, c *call) (interface{}, error) {
	var params earnedParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return nil, err
	}
	if err := requirePosition(params.PositionID); err != nil {
		return nil, err
	}
	earned, err := s.node.BribeEarned(id, symbol, params.PositionID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"earned": formatAmount(earned)}, nil
}

func handleBatchAdvance(s *Server, c *call) (interface{}, error) {
	var params advanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return nil, err
	}
	cursor, err := s.node.BatchAdvance(params.Target, id, symbol, params.MaxSteps)
	if err != nil {
		return nil, err
	}
	return cursorJSON{
		Token:          cursor.Token,
		LastUpdateTime: cursor.LastUpdateTime,
		Target:         cursor.Target,
		Steps:          cursor.Steps,
		Done:           cursor.Done,
	}, nil
}

func handleRewardRate(s *Server, c *call) (interface{}, error) {
	var params advanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return nil, err
	}
	rate, err := s.node.RewardRate(params.Target, id, symbol)
	if err != nil {
		return nil, err
	}
	return map[string]string{"rate": formatAmount(rate)}, nil
}

func handleRewardTokens(s *Server, c *call) (interface{}, error) {
	var params advanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	tokens, err := s.node.RewardTokens(params.Target, id)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []string{}
	}
	return tokens, nil
}
