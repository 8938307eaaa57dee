package model

import "github.com/ethereum/go-ethereum/common"

// OfferType mirrors OrderType at the offer level.
type OfferType string

const (
	OfferTypeEarn  OfferType = "earn"
	OfferTypeSpend OfferType = "spend"
)

// Offer is a marketplace opportunity to earn or spend. Spend offers are
// backed by inventory (Asset rows) and receive user payments at
// RecipientAddress, which is what the ledger watcher monitors.
type Offer struct {
	ID               string         `json:"id"`
	Type             OfferType      `json:"type"`
	Title            string         `json:"title"`
	Amount           int64          `json:"amount"`
	RecipientAddress common.Address `json:"recipient_address"`
	Active           bool           `json:"active"`
}

// Asset is one ownable unit of spend-offer inventory (e.g. a coupon code).
// An empty OwnerID means unclaimed. The claim (read unowned, set owner)
// is performed atomically by the store, never as separate steps.
type Asset struct {
	ID      string            `json:"id"`
	OfferID string            `json:"offer_id"`
	OwnerID string            `json:"owner_id,omitempty"`
	Data    map[string]string `json:"data,omitempty"` // e.g. coupon code payload
}

// Claimed reports whether the asset already belongs to a user.
func (a *Asset) Claimed() bool { return a.OwnerID != "" }
