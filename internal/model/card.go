// Package model defines the shared data types for the gift card pool service.
package model

import "time"

// Card is one ready-to-redeem gift card produced by the card creator.
// Cards are immutable once created; pools only push and pop them.
type Card struct {
	ID        string    `json:"id" db:"card_id"`
	ClaimURL  string    `json:"claim_url" db:"claim_url"`
	Amount    string    `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PoolSnapshot is the persisted shape of all pools: tier -> ordered cards.
// Readers tolerate missing tiers by defaulting to an empty list.
type PoolSnapshot map[string][]Card

// TierStats describes one pool for the inspect/health endpoints.
type TierStats struct {
	Tier         string `json:"tier"`
	Size         int    `json:"size"`
	Target       int    `json:"target"`
	Min          int    `json:"min"`
	Deficit      int    `json:"deficit"`
	Replenishing bool   `json:"replenishing"`
	Cards        []Card `json:"cards,omitempty"`
}
