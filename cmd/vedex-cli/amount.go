package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const week = 7 * 24 * time.Hour

// normalizeAmount expands decimal and scientific shorthand such as "1.5e18"
// into a base-10 integer string.
func normalizeAmount(value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return "", fmt.Errorf("amount is required")
	}
	exponent := 0
	base := trimmed
	if idx := strings.IndexAny(trimmed, "eE"); idx != -1 {
		base = trimmed[:idx]
		exp, err := strconv.ParseInt(strings.TrimSpace(trimmed[idx+1:]), 10, 32)
		if err != nil {
			return "", fmt.Errorf("invalid exponent in amount %q", value)
		}
		exponent = int(exp)
	}
	base = strings.TrimPrefix(base, "+")
	if strings.HasPrefix(base, "-") {
		return "", fmt.Errorf("amount must be positive")
	}
	integerPart, fractionalPart, _ := strings.Cut(base, ".")
	digits := integerPart + fractionalPart
	if digits == "" || !isDigits(digits) {
		return "", fmt.Errorf("invalid amount %q", value)
	}
	digits = strings.TrimLeft(digits, "0")
	fracLen := len(fractionalPart)
	for fracLen > 0 && len(digits) > 0 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		fracLen--
	}
	shift := exponent - fracLen
	if shift < 0 {
		return "", fmt.Errorf("amount %q is not a whole number of base units", value)
	}
	if digits == "" {
		return "", fmt.Errorf("amount must be positive")
	}
	return digits + strings.Repeat("0", shift), nil
}

// parseLockDuration accepts Go durations plus a "w" week suffix, e.g. "52w".
func parseLockDuration(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasSuffix(trimmed, "w") {
		weeks, err := strconv.ParseUint(strings.TrimSuffix(trimmed, "w"), 10, 32)
		if err != nil || weeks == 0 {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return weeks * uint64(week/time.Second), nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return uint64(d / time.Second), nil
}

// parseWeights splits "pool=weight,pool=weight" into parallel lists.
func parseWeights(value string) ([]string, []string, error) {
	var pools, weights []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pool, weight, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(pool) == "" {
			return nil, nil, fmt.Errorf("invalid vote %q, want pool=weight", entry)
		}
		normalized, err := normalizeAmount(weight)
		if err != nil {
			return nil, nil, fmt.Errorf("vote %q: %w", entry, err)
		}
		pools = append(pools, strings.TrimSpace(pool))
		weights = append(weights, normalized)
	}
	if len(pools) == 0 {
		return nil, nil, fmt.Errorf("at least one pool=weight pair is required")
	}
	return pools, weights, nil
}

func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
