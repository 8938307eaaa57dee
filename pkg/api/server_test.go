package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openoffers/marketd/pkg/model"
	"github.com/openoffers/marketd/pkg/reconcile"
	"github.com/openoffers/marketd/pkg/storage"
	"github.com/openoffers/marketd/pkg/util"
)

var (
	addrR = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	addrS = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

type noopSigner struct{}

func (noopSigner) Sign(subject string, payload map[string]any) (string, error) {
	return "signed:" + subject, nil
}

type noopRecorder struct{}

func (noopRecorder) OrderCompleted(orderType, offerID string) {}
func (noopRecorder) OrderFailed(code int)                     {}
func (noopRecorder) PaymentIgnored(reason string)             {}

func newTestServer(t *testing.T) (*Server, *storage.PebbleStore) {
	t.Helper()
	s, err := storage.NewPebbleStore(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	log := zap.NewNop().Sugar()
	r := reconcile.New(s, s, noopSigner{}, noopRecorder{}, util.RealClock{}, log)
	return NewServer(s, r, log), s
}

func TestPaymentCallbackCompletesOrder(t *testing.T) {
	srv, store := newTestServer(t)
	err := store.PutOrder(&model.Order{
		ID: "o1", UserID: "u1", OfferID: "f1",
		Type: model.OrderTypeEarn, Origin: model.OriginMarketplace,
		Amount: 100, Status: model.StatusPending,
		BlockchainData: &model.BlockchainData{RecipientAddress: addrR, SenderAddress: addrS},
	})
	if err != nil {
		t.Fatalf("put order: %v", err)
	}

	payment := map[string]any{
		"id":                "o1",
		"app_id":            "market",
		"transaction_id":    "0x0000000000000000000000000000000000000000000000000000000000000001",
		"recipient_address": addrR.Hex(),
		"sender_address":    addrS.Hex(),
		"amount":            100,
		"timestamp":         "2026-08-28T12:00:00Z",
	}
	body, _ := json.Marshal(payment)

	req := httptest.NewRequest("POST", "/v1/payments", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := store.GetOrder("o1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("order status = %s, want completed", got.Status)
	}
}

func TestPaymentCallbackRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/v1/payments", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest("POST", "/v1/payments", strings.NewReader("{}"))
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status for missing id = %d, want 400", w.Code)
	}
}

func TestGetOrder(t *testing.T) {
	srv, store := newTestServer(t)
	err := store.PutOrder(&model.Order{
		ID: "o1", UserID: "u1", OfferID: "f1",
		Type: model.OrderTypeSpend, Origin: model.OriginExternal,
		Amount: 250, Status: model.StatusPending,
	})
	if err != nil {
		t.Fatalf("put order: %v", err)
	}

	req := httptest.NewRequest("GET", "/v1/orders/o1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var info OrderInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ID != "o1" || info.Amount != 250 || info.Status != "pending" {
		t.Errorf("order info mismatch: %+v", info)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/v1/orders/missing", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetOffers(t *testing.T) {
	srv, store := newTestServer(t)
	offers := []*model.Offer{
		{ID: "f1", Type: model.OfferTypeSpend, Title: "Coffee", Amount: 100, RecipientAddress: addrR, Active: true},
		{ID: "f2", Type: model.OfferTypeSpend, Title: "Stale", Amount: 50, Active: false},
	}
	for _, o := range offers {
		if err := store.PutOffer(o); err != nil {
			t.Fatalf("put offer: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/v1/offers", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []OfferInfo
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "f1" || got[0].RecipientAddress != addrR.Hex() {
		t.Errorf("offers = %+v", got)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
