package watch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openoffers/marketd/pkg/model"
)

var (
	addrA = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	addrB = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	addrC = common.HexToAddress("0xCC00000000000000000000000000000000000000")
)

type fakeLister struct {
	mu     sync.Mutex
	offers []*model.Offer
}

func (l *fakeLister) ListActiveOffers(typ model.OfferType) ([]*model.Offer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offers, nil
}

func (l *fakeLister) set(offers []*model.Offer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers = offers
}

type fakeWatcher struct {
	mu    sync.Mutex
	calls [][]common.Address
}

func (w *fakeWatcher) Register(addresses []common.Address) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, addresses)
	return fmt.Sprintf("sub-%d", len(w.calls)), nil
}

func spendOffer(id string, addr common.Address) *model.Offer {
	return &model.Offer{ID: id, Type: model.OfferTypeSpend, RecipientAddress: addr, Active: true}
}

func TestComputeWatchSet(t *testing.T) {
	offers := []*model.Offer{
		spendOffer("f1", addrB),
		spendOffer("f2", addrA),
		spendOffer("f3", addrB), // duplicate address
		spendOffer("f4", addrC),
	}

	got := ComputeWatchSet(offers)
	want := []common.Address{addrA, addrB, addrC}
	if len(got) != len(want) {
		t.Fatalf("watch set size = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("watch set[%d] = %s, want %s", i, got[i].Hex(), want[i].Hex())
		}
	}
}

func TestComputeWatchSetEmpty(t *testing.T) {
	if got := ComputeWatchSet(nil); len(got) != 0 {
		t.Errorf("watch set of no offers = %v, want empty", got)
	}
}

func TestRefreshRegistersOnce(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]*model.Offer{spendOffer("f1", addrA), spendOffer("f2", addrB)})
	watcher := &fakeWatcher{}
	r := NewRegistrar(lister, watcher, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		if err := r.Refresh(); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}

	if len(watcher.calls) != 1 {
		t.Fatalf("identical watch set registered %d times, want 1", len(watcher.calls))
	}
	if r.SubscriptionID() != "sub-1" {
		t.Errorf("subscription id = %q, want sub-1", r.SubscriptionID())
	}
}

func TestRefreshReregistersOnChange(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]*model.Offer{spendOffer("f1", addrA)})
	watcher := &fakeWatcher{}
	r := NewRegistrar(lister, watcher, zap.NewNop().Sugar())

	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Offer set changes wholesale: the full new set is registered.
	lister.set([]*model.Offer{spendOffer("f1", addrA), spendOffer("f2", addrC)})
	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(watcher.calls) != 2 {
		t.Fatalf("registered %d times, want 2", len(watcher.calls))
	}
	last := watcher.calls[1]
	if len(last) != 2 || last[0] != addrA || last[1] != addrC {
		t.Errorf("re-registered set = %v, want [%s %s]", last, addrA.Hex(), addrC.Hex())
	}
	if r.SubscriptionID() != "sub-2" {
		t.Errorf("subscription id = %q, want sub-2", r.SubscriptionID())
	}
}
