package rpc

import (
	"math/big"
	"strings"

	"vedex/crypto"
	"vedex/native/pool"
)

func parseBech32Address(field, addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, invalidParams("%s required", field)
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, invalidParams("invalid %s: %v", field, err)
	}
	return decoded.Raw(), nil
}

func parsePositiveBigInt(field, value string) (*big.Int, error) {
	amount, err := parseBigInt(field, value)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, invalidParams("%s must be positive", field)
	}
	return amount, nil
}

func parseBigInt(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams("invalid %s", field)
	}
	if amount.Sign() < 0 {
		return nil, invalidParams("%s cannot be negative", field)
	}
	return amount, nil
}

func parsePoolID(value string) (pool.ID, error) {
	if strings.TrimSpace(value) == "" {
		return pool.ID{}, invalidParams("pool required")
	}
	id, err := pool.ParseID(value)
	if err != nil {
		return pool.ID{}, invalidParams("%v", err)
	}
	return id, nil
}

func parsePoolIDs(values []string) ([]pool.ID, error) {
	out := make([]pool.ID, 0, len(values))
	for _, value := range values {
		id, err := parsePoolID(value)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseSymbol(value string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(value))
	if symbol == "" {
		return "", invalidParams("token required")
	}
	return symbol, nil
}

func parseSymbols(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, value := range values {
		symbol, err := parseSymbol(value)
		if err != nil {
			return nil, err
		}
		out = append(out, symbol)
	}
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.AccountAddress(addr).String()
}

func formatModuleAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.ModulePrefix, addr[:]).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAmounts(in map[string]*big.Int) map[string]string {
	out := make(map[string]string, len(in))
	for symbol, amount := range in {
		out[symbol] = formatAmount(amount)
	}
	return out
}

func formatPoolIDs(ids []pool.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}
