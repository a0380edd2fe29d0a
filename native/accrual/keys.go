package accrual

import "strconv"

func (e *Engine) key(parts ...string) []byte {
	buf := append([]byte(nil), e.cfg.Namespace...)
	for _, part := range parts {
		buf = append(buf, '/')
		buf = append(buf, part...)
	}
	return buf
}

func (e *Engine) tokensKey() []byte { return e.key("tokens") }

func (e *Engine) rewardKey(token string) []byte { return e.key("reward", token) }

func (e *Engine) paidKey(token, account string) []byte {
	return e.key("reward", token, "paid", account)
}

func (e *Engine) owedKey(token, account string) []byte {
	return e.key("reward", token, "owed", account)
}

func (e *Engine) checkpointCountKey(token string) []byte {
	return e.key("reward", token, "rpt", "count")
}

func (e *Engine) checkpointKey(token string, index uint64) []byte {
	return e.key("reward", token, "rpt", strconv.FormatUint(index, 10))
}
