package minter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Schedule parameterises weekly emission. Each epoch the weekly amount is
// multiplied by DecayNum/DecayDen and never drops below Tail. A positive
// SupplyCap bounds the token's total supply.
type Schedule struct {
	Initial   *big.Int
	DecayNum  uint64
	DecayDen  uint64
	Tail      *big.Int
	SupplyCap *big.Int
}

// DefaultSchedule starts from a 20M weekly figure, decays 2% per epoch and
// keeps a 200k tail.
func DefaultSchedule() Schedule {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return Schedule{
		Initial:   new(big.Int).Mul(big.NewInt(20_000_000), unit),
		DecayNum:  98,
		DecayDen:  100,
		Tail:      new(big.Int).Mul(big.NewInt(200_000), unit),
		SupplyCap: new(big.Int),
	}
}

// Validate checks the schedule is usable.
func (s Schedule) Validate() error {
	if s.Initial == nil || s.Initial.Sign() <= 0 {
		return errors.New("minter: initial emission must be positive")
	}
	if s.DecayDen == 0 {
		return errors.New("minter: decay denominator must be positive")
	}
	if s.DecayNum > s.DecayDen {
		return errors.New("minter: decay must not grow emission")
	}
	if s.Tail == nil || s.Tail.Sign() < 0 {
		return errors.New("minter: tail emission cannot be negative")
	}
	if s.Tail.Cmp(s.Initial) > 0 {
		return errors.New("minter: tail emission exceeds initial emission")
	}
	if s.SupplyCap != nil && s.SupplyCap.Sign() < 0 {
		return errors.New("minter: supply cap cannot be negative")
	}
	return nil
}

// Next returns the decayed successor of weekly, floored at the tail.
func (s Schedule) Next(weekly *big.Int) *big.Int {
	next := new(big.Int).Mul(weekly, new(big.Int).SetUint64(s.DecayNum))
	next.Quo(next, new(big.Int).SetUint64(s.DecayDen))
	if s.Tail != nil && next.Cmp(s.Tail) < 0 {
		next.Set(s.Tail)
	}
	return next
}

// FileSchedule is the on-disk form of a Schedule. Amounts are base-10
// strings so 18-decimal values survive every format.
type FileSchedule struct {
	Initial   string `json:"initial" toml:"initial" yaml:"initial"`
	DecayNum  uint64 `json:"decayNum" toml:"decayNum" yaml:"decay_num"`
	DecayDen  uint64 `json:"decayDen" toml:"decayDen" yaml:"decay_den"`
	Tail      string `json:"tail" toml:"tail" yaml:"tail"`
	SupplyCap string `json:"supplyCap" toml:"supplyCap" yaml:"supply_cap"`
}

// Parse converts the file form into a validated Schedule.
func (f FileSchedule) Parse() (Schedule, error) {
	var out Schedule
	var err error
	if out.Initial, err = parseAmount("initial", f.Initial, true); err != nil {
		return Schedule{}, err
	}
	if out.Tail, err = parseAmount("tail", f.Tail, false); err != nil {
		return Schedule{}, err
	}
	if out.SupplyCap, err = parseAmount("supplyCap", f.SupplyCap, false); err != nil {
		return Schedule{}, err
	}
	out.DecayNum = f.DecayNum
	out.DecayDen = f.DecayDen
	if err := out.Validate(); err != nil {
		return Schedule{}, err
	}
	return out, nil
}

func parseAmount(field, raw string, required bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return nil, fmt.Errorf("minter: %s required", field)
		}
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("minter: %s invalid", field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("minter: %s cannot be negative", field)
	}
	return value, nil
}

// LoadSchedule reads a schedule from a JSON, TOML or YAML file, rejecting
// unknown fields.
func LoadSchedule(path string) (Schedule, error) {
	if strings.TrimSpace(path) == "" {
		return Schedule{}, errors.New("minter: schedule path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("minter: read schedule: %w", err)
	}
	var parsed FileSchedule
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&parsed); err != nil {
			return Schedule{}, fmt.Errorf("minter: decode schedule json: %w", err)
		}
	case ".toml", ".tml":
		meta, err := toml.DecodeReader(bytes.NewReader(data), &parsed)
		if err != nil {
			return Schedule{}, fmt.Errorf("minter: decode schedule toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Schedule{}, fmt.Errorf("minter: unknown schedule fields %v", undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&parsed); err != nil {
			return Schedule{}, fmt.Errorf("minter: decode schedule yaml: %w", err)
		}
	default:
		return Schedule{}, fmt.Errorf("minter: unsupported schedule format %q", ext)
	}
	return parsed.Parse()
}
