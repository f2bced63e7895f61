package application

import (
	"errors"
	"os"

	"rentledger/internal/proration"

	"gopkg.in/yaml.v3"
)

// Policy holds settlement calculation defaults. Values come from env with an
// optional YAML file override.
type Policy struct {
	SplitMethod   proration.SplitMethod `yaml:"split_method"`
	AbsorbGapDays bool                  `yaml:"absorb_gap_days"`
	Currency      string                `yaml:"currency"`
	// ReadingLookback caps how many readings per meter the calculator
	// fetches when deriving consumption.
	ReadingLookback int `yaml:"reading_lookback"`
}

// DefaultPolicy returns day-weighted splitting with owner-absorbed gaps.
func DefaultPolicy() Policy {
	return Policy{
		SplitMethod:     proration.SplitByDays,
		AbsorbGapDays:   true,
		Currency:        "PLN",
		ReadingLookback: 2,
	}
}

// LoadPolicy loads the settlement policy from env or a YAML file pointed to
// by SETTLEMENT_POLICY_CONFIG.
func LoadPolicy() (Policy, error) {
	policy := DefaultPolicy()

	if path := os.Getenv("SETTLEMENT_POLICY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return policy, err
		}
		if err := yaml.Unmarshal(data, &policy); err != nil {
			return policy, err
		}
	}

	if method := os.Getenv("SETTLEMENT_SPLIT_METHOD"); method != "" {
		policy.SplitMethod = proration.SplitMethod(method)
	}
	if currency := os.Getenv("SETTLEMENT_CURRENCY"); currency != "" {
		policy.Currency = currency
	}

	switch policy.SplitMethod {
	case proration.SplitByDays, proration.SplitEqual, proration.SplitByPersons:
	default:
		return policy, errors.New("settlement policy: unknown split method " + string(policy.SplitMethod))
	}
	if policy.Currency == "" {
		return policy, errors.New("settlement policy: currency required")
	}
	if policy.ReadingLookback < 2 {
		policy.ReadingLookback = 2
	}
	return policy, nil
}
