package reconcile

import (
	"errors"

	"go.uber.org/zap"

	"github.com/openoffers/marketd/pkg/model"
	"github.com/openoffers/marketd/pkg/storage"
	"github.com/openoffers/marketd/pkg/util"
)

// OrderStore is the slice of the persistence contract the reconciler
// relies on: MutateOrder must run fn under an order-scoped exclusive
// lock and write the order at most once per call.
type OrderStore interface {
	MutateOrder(id string, fn func(o *model.Order) (commit bool, err error)) (*model.Order, error)
}

// AssetClaimer claims one unit of spend-offer inventory atomically.
// Must return storage.ErrNoAsset when the offer is sold out.
type AssetClaimer interface {
	ClaimAsset(offerID, userID string) (*model.Asset, error)
}

// TokenSigner issues proof-of-payment tokens for external spend orders.
type TokenSigner interface {
	Sign(subject string, payload map[string]any) (string, error)
}

// CompletionRecorder receives fire-and-forget settlement counters.
type CompletionRecorder interface {
	OrderCompleted(orderType, offerID string)
	OrderFailed(code int)
	PaymentIgnored(reason string)
}

// Reconciler matches reported ledger payments to their orders and drives
// the payment-triggered terminal transition of the order state machine.
type Reconciler struct {
	orders  OrderStore
	assets  AssetClaimer
	signer  TokenSigner
	metrics CompletionRecorder
	clock   util.Clock
	log     *zap.SugaredLogger
}

func New(orders OrderStore, assets AssetClaimer, signer TokenSigner, metrics CompletionRecorder, clock util.Clock, log *zap.SugaredLogger) *Reconciler {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Reconciler{
		orders:  orders,
		assets:  assets,
		signer:  signer,
		metrics: metrics,
		clock:   clock,
		log:     log,
	}
}

// PaymentComplete reconciles one reported payment against the order with
// the same id. Safe to call any number of times with the same payment:
// the whole decision runs inside the order's exclusive critical section
// and an already completed order is left untouched.
//
// Domain outcomes (mismatch, sold-out inventory, duplicate delivery) are
// recorded on the order or logged and do not surface as errors; only
// collaborator failures (persistence, signing) are returned.
func (r *Reconciler) PaymentComplete(p model.CompletedPayment) error {
	var (
		completed  bool
		failedCode int
	)

	order, err := r.orders.MutateOrder(p.ID, func(o *model.Order) (bool, error) {
		if o.Status == model.StatusCompleted {
			r.log.Warnw("payment for already completed order",
				"order", p.ID, "tx", p.TransactionID)
			return false, nil
		}

		// Validate in fixed order: amount, recipient, sender.
		// First mismatch wins.
		if !AmountMatches(o, p) {
			r.log.Errorw("payment amount mismatch",
				"order", p.ID, "tx", p.TransactionID,
				"expected", o.Amount, "paid", p.Amount)
			failedCode = model.CodeWrongAmount
			failOrder(o, model.CodeWrongAmount, "wrong_amount",
				"amount on ledger does not match order")
			return true, nil
		}
		if !RecipientMatches(o, p) {
			r.log.Errorw("payment recipient address mismatch",
				"order", p.ID, "tx", p.TransactionID,
				"paid_to", p.RecipientAddress)
			failedCode = model.CodeWrongRecipient
			failOrder(o, model.CodeWrongRecipient, "wrong_address",
				"recipient address on ledger does not match order")
			return true, nil
		}
		if !SenderMatches(o, p) {
			r.log.Errorw("payment sender address mismatch",
				"order", p.ID, "tx", p.TransactionID,
				"paid_from", p.SenderAddress)
			failedCode = model.CodeWrongSender
			failOrder(o, model.CodeWrongSender, "wrong_address",
				"sender address on ledger does not match order")
			return true, nil
		}

		o.BlockchainData = &model.BlockchainData{
			TransactionID:    p.TransactionID,
			SenderAddress:    p.SenderAddress,
			RecipientAddress: p.RecipientAddress,
		}

		if o.Type == model.OrderTypeSpend {
			switch {
			case o.IsMarketplaceOrder():
				asset, err := r.assets.ClaimAsset(o.OfferID, o.UserID)
				if errors.Is(err, storage.ErrNoAsset) {
					r.log.Errorw("no unclaimed asset for offer",
						"order", p.ID, "offer", o.OfferID)
					failedCode = model.CodeUnavailableAsset
					failOrder(o, model.CodeUnavailableAsset, "unavailable_asset",
						"failed to find an available asset - contact support")
					return true, nil
				}
				if err != nil {
					return false, err
				}
				o.Value = model.AssetValue(asset)
			case o.IsExternalOrder():
				tok, err := r.signer.Sign("confirm_payment", map[string]any{
					"payment": map[string]any{
						"date":     r.clock.Now().UnixMilli(),
						"user_id":  o.UserID,
						"offer_id": o.OfferID,
					},
				})
				if err != nil {
					return false, err
				}
				o.Value = model.ConfirmPaymentValue(tok)
			}
		}
		// earn orders need no extra effect

		if o.Status != model.StatusPending {
			// A late-arriving valid payment can resolve an order that was
			// previously failed (or never submitted). Clear the stale error.
			r.log.Infow("non-pending order turned completed",
				"order", o.ID, "status", o.Status)
			o.Error = nil
		}
		o.Status = model.StatusCompleted
		o.CompletionDate = r.clock.Now()
		completed = true
		return true, nil
	})

	if errors.Is(err, storage.ErrNotFound) {
		r.log.Errorw("payment for unknown order", "order", p.ID, "tx", p.TransactionID)
		r.metrics.PaymentIgnored("unknown_order")
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case completed:
		r.metrics.OrderCompleted(string(order.Type), order.OfferID)
		r.log.Infow("order completed", "order", p.ID, "tx", p.TransactionID)
	case failedCode != 0:
		r.metrics.OrderFailed(failedCode)
	default:
		r.metrics.PaymentIgnored("duplicate")
	}
	return nil
}

// failOrder records a structured failure and moves the order to failed.
// Assigned directly rather than through SetStatus: a re-delivered invalid
// payment may re-fail an already failed order, which is a no-op here.
func failOrder(o *model.Order, code int, kind, message string) {
	o.Error = &model.OrderError{Code: code, Kind: kind, Message: message}
	o.Status = model.StatusFailed
}
