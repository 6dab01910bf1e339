package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequirementType names a predicate evaluated before a purchase.
type RequirementType string

const (
	ReqMinAccountAgeDays   RequirementType = "min_account_age_days"
	ReqMinApprovedArtworks RequirementType = "min_approved_artworks"
	ReqMinBalance          RequirementType = "min_balance"
)

// Requirement is one predicate in a scenario's requirement set.
// Value carries the threshold; min_balance uses a decimal string.
type Requirement struct {
	Type  RequirementType `json:"type"`
	Value string          `json:"value"`
}

// EffectType names a grant applied on purchase.
type EffectType string

const (
	EffectTimedFlag EffectType = "timed_flag"
)

// Effect is one grant in a scenario's effect set. Timed effects expire
// DurationHours after purchase; each purchase grants a fresh instance.
type Effect struct {
	Type          EffectType `json:"type"`
	Key           string     `json:"key"`
	DurationHours int        `json:"duration_hours,omitempty"`
}

type ConsumptionScenario struct {
	ID         int64           `json:"id"`
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
	DailyLimit *int            `json:"daily_limit,omitempty"`
	Active     bool            `json:"active"`
	Requires   []Requirement   `json:"requirements,omitempty"`
	Effects    []Effect        `json:"effects,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ScenarioPurchase struct {
	ID          int64           `json:"id"`
	ScenarioID  int64           `json:"scenario_id"`
	AccountID   int64           `json:"account_id"`
	PricePaid   decimal.Decimal `json:"price_paid"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

// AccountEffect is a granted effect instance. ExpiresAt is nil for
// effects without a duration.
type AccountEffect struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	PurchaseID int64      `json:"purchase_id"`
	Key        string     `json:"key"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
