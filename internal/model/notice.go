package model

import "time"

// PublicNotice is the announcement event emitted when economic parameters
// change or an airdrop runs. Emission is fire-and-forget; it is never part
// of the transactional guarantee.
type PublicNotice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Reason      string    `json:"reason"`
	ActorID     int64     `json:"actor_id"`
	EffectiveAt time.Time `json:"effective_at"`
	CreatedAt   time.Time `json:"created_at"`
}
