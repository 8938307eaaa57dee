package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderType says whether the user earns or spends the asset.
type OrderType string

const (
	OrderTypeEarn  OrderType = "earn"
	OrderTypeSpend OrderType = "spend"
)

// OrderOrigin distinguishes marketplace-initiated orders (inventory-backed)
// from externally-initiated ones (settled with a proof-of-payment token).
type OrderOrigin string

const (
	OriginMarketplace OrderOrigin = "marketplace"
	OriginExternal    OrderOrigin = "external"
)

// OrderStatus is the order lifecycle state.
// Transitions are monotonic: opened -> pending -> {completed, failed}.
type OrderStatus string

const (
	StatusOpened    OrderStatus = "opened"
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
)

// Terminal reports whether the status has no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stable error codes recorded on failed orders.
// These are part of the external contract and must not be renumbered.
const (
	CodeWrongSender      = 1111
	CodeWrongRecipient   = 1112
	CodeWrongAmount      = 1113
	CodeUnavailableAsset = 1114
)

// OrderError is the structured failure recorded on a failed order.
type OrderError struct {
	Code    int    `json:"code"`
	Kind    string `json:"error"`
	Message string `json:"message"`
}

// BlockchainData holds the ledger-side expectations and facts of an
// order: the recipient and sender addresses are fixed when the order is
// submitted to the ledger; the transaction id is filled in once a payment
// validates. Values already set are never overwritten with different ones.
type BlockchainData struct {
	TransactionID    common.Hash    `json:"transaction_id"`
	SenderAddress    common.Address `json:"sender_address"`
	RecipientAddress common.Address `json:"recipient_address"`
}

// OrderValueKind tags the OrderValue union.
type OrderValueKind string

const (
	ValueNone           OrderValueKind = ""
	ValueAsset          OrderValueKind = "asset"
	ValueConfirmPayment OrderValueKind = "confirm_payment"
)

// OrderValue is what the user receives on completion: an inventory asset
// for marketplace spends, a signed proof-of-payment token for external
// spends, or nothing for earns. Exactly one branch is populated per kind.
type OrderValue struct {
	Kind  OrderValueKind `json:"type"`
	Asset *Asset         `json:"asset,omitempty"`
	JWT   string         `json:"jwt,omitempty"`
}

// AssetValue wraps a claimed inventory asset as an order value.
func AssetValue(a *Asset) OrderValue {
	return OrderValue{Kind: ValueAsset, Asset: a}
}

// ConfirmPaymentValue wraps a signed proof-of-payment token as an order value.
func ConfirmPaymentValue(token string) OrderValue {
	return OrderValue{Kind: ValueConfirmPayment, JWT: token}
}

// Order records a user's intent to earn or spend an asset for an offer,
// tracked through to a terminal completed/failed state.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	OfferID        string          `json:"offer_id"`
	Type           OrderType       `json:"type"`
	Origin         OrderOrigin     `json:"origin"`
	Amount         int64           `json:"amount"` // smallest unit, fixed at open time
	Status         OrderStatus     `json:"status"`
	BlockchainData *BlockchainData `json:"blockchain_data,omitempty"`
	Value          OrderValue      `json:"value,omitempty"`
	Error          *OrderError     `json:"error,omitempty"`
	CompletionDate time.Time       `json:"completion_date,omitempty"`
}

// SetStatus applies a lifecycle transition, enforcing monotonicity.
// The failed -> completed transition is allowed: a late-arriving valid
// payment may resolve a previously failed order.
func (o *Order) SetStatus(next OrderStatus) error {
	if !validTransition(o.Status, next) {
		return fmt.Errorf("order %s: invalid status transition %s -> %s", o.ID, o.Status, next)
	}
	o.Status = next
	return nil
}

func validTransition(from, to OrderStatus) bool {
	switch from {
	case StatusOpened:
		return to == StatusPending || to == StatusCompleted || to == StatusFailed
	case StatusPending:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusCompleted
	default:
		return false
	}
}

// IsMarketplaceOrder reports whether completion claims marketplace inventory.
func (o *Order) IsMarketplaceOrder() bool { return o.Origin == OriginMarketplace }

// IsExternalOrder reports whether completion issues a proof-of-payment token.
func (o *Order) IsExternalOrder() bool { return o.Origin == OriginExternal }
