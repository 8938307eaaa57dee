package reconcile

import "github.com/openoffers/marketd/pkg/model"

// Stateless predicates comparing what the order expects against what the
// ledger reported. Composed by the reconciler in a fixed order (amount,
// recipient, sender) so a payment wrong in several ways always reports
// the amount mismatch first.

// AmountMatches reports whether the paid amount equals the order amount
// exactly. Over- and underpayment both fail.
func AmountMatches(o *model.Order, p model.CompletedPayment) bool {
	return o.Amount == p.Amount
}

// RecipientMatches reports whether the payment landed on the address the
// order expected to be paid.
func RecipientMatches(o *model.Order, p model.CompletedPayment) bool {
	return o.BlockchainData != nil && o.BlockchainData.RecipientAddress == p.RecipientAddress
}

// SenderMatches reports whether the payment came from the wallet the
// order was opened with.
func SenderMatches(o *model.Order, p model.CompletedPayment) bool {
	return o.BlockchainData != nil && o.BlockchainData.SenderAddress == p.SenderAddress
}
