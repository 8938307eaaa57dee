package watch

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/openoffers/marketd/pkg/model"
)

// Watcher is the external service observing the ledger. Register replaces
// the watched address set wholesale and returns a subscription handle.
type Watcher interface {
	Register(addresses []common.Address) (string, error)
}

// OfferLister is the slice of the store the registrar reads from.
type OfferLister interface {
	ListActiveOffers(typ model.OfferType) ([]*model.Offer, error)
}

// ComputeWatchSet extracts the recipient address of each offer,
// deduplicates, and returns the set in deterministic order.
func ComputeWatchSet(offers []*model.Offer) []common.Address {
	seen := make(map[common.Address]struct{}, len(offers))
	var addrs []common.Address
	for _, o := range offers {
		if _, ok := seen[o.RecipientAddress]; ok {
			continue
		}
		seen[o.RecipientAddress] = struct{}{}
		addrs = append(addrs, o.RecipientAddress)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// Registrar keeps the watcher's address set in sync with the active spend
// offers. Each refresh recomputes the full set; a fingerprint of the last
// registered set suppresses re-registering an identical one, so repeated
// refreshes never create duplicate subscriptions.
type Registrar struct {
	offers  OfferLister
	watcher Watcher
	log     *zap.SugaredLogger

	mu      sync.Mutex
	lastSet [32]byte
	subID   string
}

func NewRegistrar(offers OfferLister, watcher Watcher, log *zap.SugaredLogger) *Registrar {
	return &Registrar{offers: offers, watcher: watcher, log: log}
}

// Refresh recomputes the watch set from active spend offers and registers
// it with the watcher when it differs from the last registered set.
func (r *Registrar) Refresh() error {
	offers, err := r.offers.ListActiveOffers(model.OfferTypeSpend)
	if err != nil {
		return err
	}
	addrs := ComputeWatchSet(offers)
	fp := fingerprint(addrs)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subID != "" && fp == r.lastSet {
		return nil
	}

	subID, err := r.watcher.Register(addrs)
	if err != nil {
		return err
	}
	r.lastSet = fp
	r.subID = subID
	r.log.Infow("watch set registered", "subscription", subID, "addresses", len(addrs))
	return nil
}

// Invalidate forces the next Refresh to register even when the address
// set is unchanged. Called after the watcher connection is lost, since a
// fresh connection carries no subscriptions.
func (r *Registrar) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subID = ""
}

// SubscriptionID returns the handle of the last successful registration.
func (r *Registrar) SubscriptionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subID
}

func fingerprint(addrs []common.Address) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, a := range addrs {
		h.Write(a[:])
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
