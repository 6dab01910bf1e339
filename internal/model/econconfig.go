package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfigType identifies which live parameter a config change targets.
type ConfigType string

const (
	ConfigTaskReward       ConfigType = "task_reward"
	ConfigConsumptionPrice ConfigType = "consumption_price"
)

// EconomicConfig is an append-only audit record of an economic parameter
// change. The live value (Task.reward_points or Scenario.price) is mutated
// separately: in the same transaction for immediate changes, or by the
// activation sweep once EffectiveAt elapses. AppliedAt is set exactly once.
type EconomicConfig struct {
	ID           int64           `json:"id"`
	ConfigKey    string          `json:"config_key"`
	ConfigType   ConfigType      `json:"config_type"`
	TargetKey    string          `json:"target_key"`
	Value        decimal.Decimal `json:"config_value"`
	ChangeReason string          `json:"change_reason"`
	UpdatedBy    int64           `json:"updated_by"`
	EffectiveAt  time.Time       `json:"effective_at"`
	AppliedAt    *time.Time      `json:"applied_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Applied reports whether the change has been pushed to the live parameter.
func (c *EconomicConfig) Applied() bool {
	return c.AppliedAt != nil
}
