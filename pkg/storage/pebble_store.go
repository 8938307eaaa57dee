package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/openoffers/marketd/pkg/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrNoAsset is returned by ClaimAsset when the offer has no unclaimed
	// inventory left. Not a system fault; callers record it on the order.
	ErrNoAsset = errors.New("storage: no unclaimed asset for offer")
)

// PebbleStore persists orders, offers and assets in Pebble and owns the
// two atomicity obligations of the persistence contract:
//
//   - MutateOrder serializes all writers of one order id behind an
//     order-scoped exclusive lock (compare-and-set on status and fields).
//   - ClaimAsset selects and claims one unowned asset under a per-offer
//     lock, so concurrent completions never double-allocate.
type PebbleStore struct {
	db *pebble.DB

	mu         sync.Mutex
	orderLocks map[string]*sync.Mutex
	offerLocks map[string]*sync.Mutex
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{
		db:         db,
		orderLocks: make(map[string]*sync.Mutex),
		offerLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: o:<order-id>, f:<offer-id>, a:<offer-id>:<asset-id>
func kOrder(id string) []byte               { return []byte("o:" + id) }
func kOffer(id string) []byte               { return []byte("f:" + id) }
func kAsset(offerID, assetID string) []byte { return []byte("a:" + offerID + ":" + assetID) }
func kAssetPrefix(offerID string) []byte    { return []byte("a:" + offerID + ":") }

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}

func (s *PebbleStore) lockFor(table map[string]*sync.Mutex, id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := table[id]
	if !ok {
		l = &sync.Mutex{}
		table[id] = l
	}
	return l
}

// ============================================================================
// Orders
// ============================================================================

// GetOrder loads an order by id. Returns ErrNotFound if it does not exist.
func (s *PebbleStore) GetOrder(id string) (*model.Order, error) {
	data, closer, err := s.db.Get(kOrder(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	defer closer.Close()

	var o model.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", id, err)
	}
	return &o, nil
}

// PutOrder writes an order unconditionally. Used by order submission and
// test fixtures; reconciliation goes through MutateOrder.
func (s *PebbleStore) PutOrder(o *model.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}
	if err := s.db.Set(kOrder(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// MutateOrder loads the order, runs fn on it under the order's exclusive
// lock, and persists the result iff fn returns commit=true. Concurrent
// mutations of the same order id serialize here; fn sees the latest
// committed state, so a status check inside fn acts as a compare-and-set.
// The order is written at most once per invocation.
func (s *PebbleStore) MutateOrder(id string, fn func(o *model.Order) (commit bool, err error)) (*model.Order, error) {
	l := s.lockFor(s.orderLocks, id)
	l.Lock()
	defer l.Unlock()

	o, err := s.GetOrder(id)
	if err != nil {
		return nil, err
	}

	commit, err := fn(o)
	if err != nil {
		return nil, err
	}
	if !commit {
		return o, nil
	}
	if err := s.PutOrder(o); err != nil {
		return nil, err
	}
	return o, nil
}

// ============================================================================
// Assets
// ============================================================================

// PutAsset writes an inventory asset.
func (s *PebbleStore) PutAsset(a *model.Asset) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal asset %s: %w", a.ID, err)
	}
	if err := s.db.Set(kAsset(a.OfferID, a.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save asset %s: %w", a.ID, err)
	}
	return nil
}

// ClaimAsset atomically selects one unclaimed asset of the offer and
// assigns it to userID. The scan and the ownership write happen under the
// offer's lock, so no other caller can observe the asset unowned once
// selected. Returns ErrNoAsset when the offer's inventory is exhausted.
func (s *PebbleStore) ClaimAsset(offerID, userID string) (*model.Asset, error) {
	l := s.lockFor(s.offerLocks, offerID)
	l.Lock()
	defer l.Unlock()

	prefix := kAssetPrefix(offerID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate assets of %s: %w", offerID, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var a model.Asset
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			continue // skip invalid entries
		}
		if a.Claimed() {
			continue
		}
		a.OwnerID = userID
		data, err := json.Marshal(&a)
		if err != nil {
			return nil, fmt.Errorf("marshal asset %s: %w", a.ID, err)
		}
		if err := s.db.Set(kAsset(a.OfferID, a.ID), data, pebble.Sync); err != nil {
			return nil, fmt.Errorf("claim asset %s: %w", a.ID, err)
		}
		return &a, nil
	}
	return nil, ErrNoAsset
}

// CountUnclaimedAssets reports remaining inventory for an offer.
func (s *PebbleStore) CountUnclaimedAssets(offerID string) (int, error) {
	prefix := kAssetPrefix(offerID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("iterate assets of %s: %w", offerID, err)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var a model.Asset
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			continue
		}
		if !a.Claimed() {
			n++
		}
	}
	return n, nil
}

// ============================================================================
// Offers
// ============================================================================

// PutOffer writes an offer.
func (s *PebbleStore) PutOffer(o *model.Offer) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal offer %s: %w", o.ID, err)
	}
	if err := s.db.Set(kOffer(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save offer %s: %w", o.ID, err)
	}
	return nil
}

// GetOffer loads an offer by id. Returns ErrNotFound if it does not exist.
func (s *PebbleStore) GetOffer(id string) (*model.Offer, error) {
	data, closer, err := s.db.Get(kOffer(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", id, err)
	}
	defer closer.Close()

	var o model.Offer
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal offer %s: %w", id, err)
	}
	return &o, nil
}

// ListActiveOffers returns all active offers of the given type.
func (s *PebbleStore) ListActiveOffers(typ model.OfferType) ([]*model.Offer, error) {
	prefix := []byte("f:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	defer iter.Close()

	var offers []*model.Offer
	for iter.First(); iter.Valid(); iter.Next() {
		var o model.Offer
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue
		}
		if !o.Active || o.Type != typ {
			continue
		}
		cp := o
		offers = append(offers, &cp)
	}
	return offers, nil
}
