package api

import (
	"time"

	"github.com/openoffers/marketd/pkg/model"
)

// OrderInfo is the read representation of an order.
type OrderInfo struct {
	ID             string                `json:"id"`
	UserID         string                `json:"user_id"`
	OfferID        string                `json:"offer_id"`
	Type           string                `json:"type"`
	Origin         string                `json:"origin"`
	Amount         int64                 `json:"amount"`
	Status         string                `json:"status"`
	BlockchainData *model.BlockchainData `json:"blockchain_data,omitempty"`
	Value          *model.OrderValue     `json:"value,omitempty"`
	Error          *model.OrderError     `json:"error,omitempty"`
	CompletionDate *time.Time            `json:"completion_date,omitempty"`
}

// OfferInfo is the read representation of an offer.
type OfferInfo struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	Amount           int64  `json:"amount"`
	RecipientAddress string `json:"recipient_address"`
}

// PaymentAck confirms receipt of a payment callback.
type PaymentAck struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
