package rpc

import (
	"math/big"

	"vedex/core"
)

func init() {
	register(map[string]method{
		"token_register":      {module: core.ModuleToken, signed: true, handler: handleRegisterToken},
		"token_mint":          {module: core.ModuleToken, signed: true, handler: handleMintToken},
		"token_transfer":      {module: core.ModuleToken, signed: true, handler: handleTransfer},
		"token_approve":       {module: core.ModuleToken, signed: true, handler: handleApprove},
		"token_balance":       {module: core.ModuleToken, handler: handleBalance},
		"token_info":          {module: core.ModuleToken, handler: handleTokenInfo},
		"pool_register":       {module: core.ModulePool, signed: true, handler: handleRegisterPool},
		"pool_recordFees":     {module: core.ModulePool, signed: true, handler: handleRecordFees},
		"pool_get":            {module: core.ModulePool, handler: handleGetPool},
		"pool_list":           {module: core.ModulePool, handler: handleListPools},
		"minter_initialize":   {module: core.ModuleMinter, signed: true, handler: handleInitializeMinter},
		"minter_updatePeriod": {module: core.ModuleMinter, handler: handleUpdatePeriod},
		"minter_due":          {module: core.ModuleMinter, handler: handleMinterDue},
		"minter_state":        {module: core.ModuleMinter, handler: handleMinterState},
		"rebase_claim":        {module: core.ModuleRebase, handler: handleClaimRebase},
		"rebase_claimable":    {module: core.ModuleRebase, handler: handleRebaseClaimable},
		"rebase_state":        {module: core.ModuleRebase, handler: handleRebaseState},
	})
}

type tokenRegisterParams struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type tokenMoveParams struct {
	Token   string `json:"token"`
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

type balanceParams struct {
	Token   string `json:"token"`
	Account string `json:"account,omitempty"`
}

type poolRegisterParams struct {
	Pool   string `json:"pool"`
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Stable bool   `json:"stable"`
}

type feeParams struct {
	Pool    string `json:"pool"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

type minterInitParams struct {
	Recipients  []string `json:"recipients"`
	Amounts     []string `json:"amounts"`
	TotalSupply string   `json:"totalSupply,omitempty"`
}

type rebaseParams struct {
	ID       uint64 `json:"id"`
	MaxWeeks int    `json:"maxWeeks,omitempty"`
}

type tokenJSON struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Minter   string `json:"minter"`
	Supply   string `json:"supply"`
}

type poolJSON struct {
	ID          string `json:"id"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Stable      bool   `json:"stable"`
	LPToken     string `json:"lpToken"`
	FeeClaimer  string `json:"feeClaimer,omitempty"`
	PendingFee0 string `json:"pendingFee0"`
	PendingFee1 string `json:"pendingFee1"`
}

type minterJSON struct {
	Initialized  bool   `json:"initialized"`
	ActivePeriod uint64 `json:"activePeriod"`
	Weekly       string `json:"weekly"`
	Periods      uint64 `json:"periods"`
}

type rebaseJSON struct {
	StartTime     uint64 `json:"startTime"`
	LastTokenTime uint64 `json:"lastTokenTime"`
	LastBalance   string `json:"lastBalance"`
}

func handleRegisterToken(s *Server, c *call) (interface{}, error) {
	var params tokenRegisterParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	symbol, err := parseSymbol(params.Symbol)
	if err != nil {
		return nil, err
	}
	if err := s.node.RegisterToken(c.caller, symbol, params.Decimals); err != nil {
		return nil, err
	}
	return okResult, nil
}

func decodeTokenMove(c *call) (tokenMoveParams, *big.Int, error) {
	var params tokenMoveParams
	if err := c.decode(&params); err != nil {
		return params, nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return params, nil, err
	}
	params.Token = symbol
	amount, err := parseBigInt("amount", params.Amount)
	if err != nil {
		return params, nil, err
	}
	return params, amount, nil
}

func handleMintToken(s *Server, c *call) (interface{}, error) {
	params, amount, err := decodeTokenMove(c)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, invalidParams("amount must be positive")
	}
	to, err := parseBech32Address("to", params.To)
	if err != nil {
		return nil, err
	}
	if err := s.node.MintToken(c.caller, params.Token, to, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleTransfer(s *Server, c *call) (interface{}, error) {
	params, amount, err := decodeTokenMove(c)
	if err != nil {
		return nil, err
	}
	to, err := parseBech32Address("to", params.To)
	if err != nil {
		return nil, err
	}
	if err := s.node.Transfer(params.Token, c.caller, to, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleApprove(s *Server, c *call) (interface{}, error) {
	params, amount, err := decodeTokenMove(c)
	if err != nil {
		return nil, err
	}
	spender, err := parseBech32Address("spender", params.Spender)
	if err != nil {
		return nil, err
	}
	if err := s.node.Approve(params.Token, c.caller, spender, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleBalance(s *Server, c *call) (interface{}, error) {
	var params balanceParams
	if err := c.decode(&params); err != nil {
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
	balance, err := s.node.Balance(symbol, account)
	if err != nil {
		return nil, err
	}
	return map[string]string{"balance": formatAmount(balance)}, nil
}

func handleTokenInfo(s *Server, c *call) (interface{}, error) {
	var params balanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	symbol, err := parseSymbol(params.Token)
	if err != nil {
		return nil, err
	}
	meta, supply, err := s.node.TokenInfo(symbol)
	if err != nil {
		return nil, err
	}
	return tokenJSON{
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		Minter:   formatAddress(meta.Minter),
		Supply:   formatAmount(supply),
	}, nil
}

func handleRegisterPool(s *Server, c *call) (interface{}, error) {
	var params poolRegisterParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	token0, err := parseSymbol(params.Token0)
	if err != nil {
		return nil, err
	}
	token1, err := parseSymbol(params.Token1)
	if err != nil {
		return nil, err
	}
	p, err := s.node.RegisterPool(c.caller, id, token0, token1, params.Stable)
	if err != nil {
		return nil, err
	}
	return poolJSON{
		ID:          p.ID.Hex(),
		Token0:      p.Token0,
		Token1:      p.Token1,
		Stable:      p.Stable,
		LPToken:     p.LPToken,
		PendingFee0: "0",
		PendingFee1: "0",
	}, nil
}

func handleRecordFees(s *Server, c *call) (interface{}, error) {
	var params feeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	amount0, err := parseBigInt("amount0", params.Amount0)
	if err != nil {
		return nil, err
	}
	amount1, err := parseBigInt("amount1", params.Amount1)
	if err != nil {
		return nil, err
	}
	if err := s.node.RecordFees(c.caller, id, amount0, amount1); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleGetPool(s *Server, c *call) (interface{}, error) {
	var params poolParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	id, err := parsePoolID(params.Pool)
	if err != nil {
		return nil, err
	}
	p, fees, err := s.node.Pool(id)
	if err != nil {
		return nil, err
	}
	out := poolJSON{
		ID:          p.ID.Hex(),
		Token0:      p.Token0,
		Token1:      p.Token1,
		Stable:      p.Stable,
		LPToken:     p.LPToken,
		PendingFee0: "0",
		PendingFee1: "0",
	}
	if p.FeeClaimer != ([20]byte{}) {
		out.FeeClaimer = formatModuleAddress(p.FeeClaimer)
	}
	if fees != nil {
		out.PendingFee0 = formatAmount(fees.Amount0)
		out.PendingFee1 = formatAmount(fees.Amount1)
	}
	return out, nil
}

func handleListPools(s *Server, _ *call) (interface{}, error) {
	ids, err := s.node.Pools()
	if err != nil {
		return nil, err
	}
	return formatPoolIDs(ids), nil
}

func handleInitializeMinter(s *Server, c *call) (interface{}, error) {
	var params minterInitParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if len(params.Recipients) != len(params.Amounts) {
		return nil, invalidParams("recipients and amounts length mismatch")
	}
	recipients := make([][20]byte, 0, len(params.Recipients))
	for _, raw := range params.Recipients {
		addr, err := parseBech32Address("recipient", raw)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, addr)
	}
	amounts := make([]*big.Int, 0, len(params.Amounts))
	for _, raw := range params.Amounts {
		amount, err := parsePositiveBigInt("amount", raw)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	// The supply hint defaults to the seeded total.
	hint := new(big.Int)
	for _, amount := range amounts {
		hint.Add(hint, amount)
	}
	if params.TotalSupply != "" {
		var err error
		if hint, err = parseBigInt("totalSupply", params.TotalSupply); err != nil {
			return nil, err
		}
	}
	if err := s.node.InitializeMinter(c.caller, recipients, amounts, hint); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleUpdatePeriod(s *Server, _ *call) (interface{}, error) {
	advanced, err := s.node.UpdatePeriod()
	if err != nil {
		return nil, err
	}
	return map[string]bool{"advanced": advanced}, nil
}

func handleMinterDue(s *Server, _ *call) (interface{}, error) {
	due, err := s.node.MinterDue()
	if err != nil {
		return nil, err
	}
	return map[string]bool{"due": due}, nil
}

func handleMinterState(s *Server, _ *call) (interface{}, error) {
	st, err := s.node.MinterState()
	if err != nil {
		return nil, err
	}
	return minterJSON{
		Initialized:  st.Initialized,
		ActivePeriod: st.ActivePeriod,
		Weekly:       formatAmount(st.Weekly),
		Periods:      st.Periods,
	}, nil
}

func handleClaimRebase(s *Server, c *call) (interface{}, error) {
	var params rebaseParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	paid, err := s.node.ClaimRebase(params.ID, params.MaxWeeks)
	if err != nil {
		return nil, err
	}
	return map[string]string{"amount": formatAmount(paid)}, nil
}

func handleRebaseClaimable(s *Server, c *call) (interface{}, error) {
	var params rebaseParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	owed, err := s.node.RebaseClaimable(params.ID, params.MaxWeeks)
	if err != nil {
		return nil, err
	}
	return map[string]string{"amount": formatAmount(owed)}, nil
}

func handleRebaseState(s *Server, _ *call) (interface{}, error) {
	st, err := s.node.RebaseState()
	if err != nil {
		return nil, err
	}
	return rebaseJSON{
		StartTime:     st.StartTime,
		LastTokenTime: st.LastTokenTime,
		LastBalance:   formatAmount(st.LastBalance),
	}, nil
}
