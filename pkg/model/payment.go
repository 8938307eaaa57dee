package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CompletedPayment is a ledger event reporting a settled transfer,
// delivered by the watcher and matched to an order by shared id.
// Delivery is at-least-once: duplicates and reordering relative to the
// order lifecycle are expected and must be handled idempotently.
type CompletedPayment struct {
	ID               string         `json:"id"` // matches an order id
	AppID            string         `json:"app_id"`
	TransactionID    common.Hash    `json:"transaction_id"`
	RecipientAddress common.Address `json:"recipient_address"`
	SenderAddress    common.Address `json:"sender_address"`
	Amount           int64          `json:"amount"`
	Timestamp        time.Time      `json:"timestamp"`
}
