package rpc

import (
	"vedex/core"
	"vedex/native/votingescrow"
)

func init() {
	register(map[string]method{
		"ve_createLock":       {module: core.ModuleEscrow, signed: true, handler: handleCreateLock},
		"ve_increaseAmount":   {module: core.ModuleEscrow, signed: true, handler: handleIncreaseAmount},
		"ve_depositFor":       {module: core.ModuleEscrow, signed: true, handler: handleDepositFor},
		"ve_increaseDuration": {module: core.ModuleEscrow, signed: true, handler: handleIncreaseDuration},
		"ve_merge":            {module: core.ModuleEscrow, signed: true, handler: handleMerge},
		"ve_withdraw":         {module: core.ModuleEscrow, signed: true, handler: handleWithdraw},
		"ve_transfer":         {module: core.ModuleEscrow, signed: true, handler: handleTransferPosition},
		"ve_getPosition":      {module: core.ModuleEscrow, handler: handleGetPosition},
		"ve_positionsOf":      {module: core.ModuleEscrow, handler: handlePositionsOf},
		"ve_votingPower":      {module: core.ModuleEscrow, handler: handleVotingPower},
		"ve_totalVotingPower": {module: core.ModuleEscrow, handler: handleTotalVotingPower},
		"ve_checkpoints":      {module: core.ModuleEscrow, handler: handleCheckpoints},
		"ve_custody":          {module: core.ModuleEscrow, handler: handleCustody},
	})
}

type lockParams struct {
	ID       uint64 `json:"id,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Duration uint64 `json:"duration,omitempty"`
}

type mergeParams struct {
	From uint64 `json:"from"`
	Into uint64 `json:"into"`
}

type positionTransferParams struct {
	ID uint64 `json:"id"`
	To string `json:"to"`
}

type powerParams struct {
	ID        uint64 `json:"id,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type positionJSON struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner,omitempty"`
	Amount      string `json:"amount"`
	End         uint64 `json:"end"`
	Voted       bool   `json:"voted"`
	Attachments uint64 `json:"attachments"`
	Burned      bool   `json:"burned"`
}

type pointJSON struct {
	Timestamp uint64 `json:"timestamp"`
	Bias      string `json:"bias"`
	Slope     string `json:"slope"`
}

func formatPosition(p *votingescrow.Position) positionJSON {
	out := positionJSON{
		ID:          p.ID,
		Amount:      formatAmount(p.Amount),
		End:         p.End,
		Voted:       p.Voted,
		Attachments: p.Attachments,
		Burned:      p.Burned(),
	}
	if !out.Burned {
		out.Owner = formatAddress(p.Owner)
	}
	return out
}

func requirePosition(id uint64) error {
	if id == 0 {
		return invalidParams("id required")
	}
	return nil
}

func handleCreateLock(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if params.Duration == 0 {
		return nil, invalidParams("duration required")
	}
	id, err := s.node.CreateLock(c.caller, amount, params.Duration)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"id": id}, nil
}

func handleIncreaseAmount(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.IncreaseAmount(c.caller, params.ID, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleDepositFor(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.DepositFor(c.caller, params.ID, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleIncreaseDuration(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	if params.Duration == 0 {
		return nil, invalidParams("duration required")
	}
	if err := s.node.IncreaseDuration(c.caller, params.ID, params.Duration); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleMerge(s *Server, c *call) (interface{}, error) {
	var params mergeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.From == 0 || params.Into == 0 {
		return nil, invalidParams("from and into required")
	}
	if err := s.node.Merge(c.caller, params.From, params.Into); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleWithdraw(s *Server, c *call) (interface{}, error) {
	var params lockParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	amount, err := s.node.Withdraw(c.caller, params.ID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"amount": formatAmount(amount)}, nil
}

func handleTransferPosition(s *Server, c *call) (interface{}, error) {
	var params positionTransferParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	to, err := parseBech32Address("to", params.To)
	if err != nil {
		return nil, err
	}
	if err := s.node.TransferPosition(c.caller, to, params.ID); err != nil {
		return nil, err
	}
	return okResult, nil
}

func handleGetPosition(s *Server, c *call) (interface{}, error) {
	var params powerParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	position, err := s.node.Position(params.ID)
	if err != nil {
		return nil, err
	}
	return formatPosition(position), nil
}

func handlePositionsOf(s *Server, c *call) (interface{}, error) {
	var params ownerParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	owner, err := parseBech32Address("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	ids, err := s.node.PositionsOf(owner)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func handleVotingPower(s *Server, c *call) (interface{}, error) {
	var params powerParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	power, err := s.node.VotingPowerOf(params.ID, params.Timestamp)
	if err != nil {
		return nil, err
	}
	return map[string]string{"power": formatAmount(power)}, nil
}

func handleTotalVotingPower(s *Server, c *call) (interface{}, error) {
	var params powerParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	power, err := s.node.TotalVotingPowerAt(params.Timestamp)
	if err != nil {
		return nil, err
	}
	return map[string]string{"power": formatAmount(power)}, nil
}

func handleCheckpoints(s *Server, c *call) (interface{}, error) {
	var params powerParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if err := requirePosition(params.ID); err != nil {
		return nil, err
	}
	points, err := s.node.Checkpoints(params.ID)
	if err != nil {
		return nil, err
	}
	out := make([]pointJSON, 0, len(points))
	for _, p := range points {
		out = append(out, pointJSON{Timestamp: p.Timestamp, Bias: formatAmount(p.Bias), Slope: formatAmount(p.Slope)})
	}
	return out, nil
}

func handleCustody(s *Server, _ *call) (interface{}, error) {
	return map[string]string{"address": formatModuleAddress(s.node.EscrowCustody())}, nil
}

var okResult = map[string]bool{"ok": true}
