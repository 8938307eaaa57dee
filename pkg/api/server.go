package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openoffers/marketd/pkg/model"
	"github.com/openoffers/marketd/pkg/storage"
)

// Reconciler is the payment entrypoint the server feeds callbacks into.
type Reconciler interface {
	PaymentComplete(p model.CompletedPayment) error
}

// Store is the read surface the server exposes.
type Store interface {
	GetOrder(id string) (*model.Order, error)
	ListActiveOffers(typ model.OfferType) ([]*model.Offer, error)
}

// Server exposes the watcher payment callback and read endpoints.
type Server struct {
	store      Store
	reconciler Reconciler
	router     *mux.Router
	log        *zap.SugaredLogger
}

func NewServer(store Store, reconciler Reconciler, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:      store,
		reconciler: reconciler,
		router:     mux.NewRouter(),
		log:        log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/v1").Subrouter()

	// Watcher callback
	api.HandleFunc("/payments", s.handlePaymentCallback).Methods("POST")

	// Reads
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/offers", s.handleGetOffers).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler returns the assembled handler; used by httptest.
func (s *Server) Handler() http.Handler { return s.router }

// handlePaymentCallback accepts a CompletedPayment from the watcher and
// runs reconciliation. Always acks with 200 unless the body is malformed
// or a collaborator fails: the watcher delivers at-least-once and treats
// non-2xx as a retry signal.
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var p model.CompletedPayment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payment body", err.Error())
		return
	}
	if p.ID == "" {
		respondError(w, http.StatusBadRequest, "missing payment id", "")
		return
	}

	if err := s.reconciler.PaymentComplete(p); err != nil {
		s.log.Errorw("payment reconciliation failed", "order", p.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "reconciliation failed", "")
		return
	}
	respondJSON(w, PaymentAck{Status: "accepted", ID: p.ID})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := s.store.GetOrder(id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load order", "")
		return
	}

	info := OrderInfo{
		ID:             order.ID,
		UserID:         order.UserID,
		OfferID:        order.OfferID,
		Type:           string(order.Type),
		Origin:         string(order.Origin),
		Amount:         order.Amount,
		Status:         string(order.Status),
		BlockchainData: order.BlockchainData,
		Error:          order.Error,
	}
	if order.Value.Kind != model.ValueNone {
		v := order.Value
		info.Value = &v
	}
	if !order.CompletionDate.IsZero() {
		t := order.CompletionDate
		info.CompletionDate = &t
	}
	respondJSON(w, info)
}

func (s *Server) handleGetOffers(w http.ResponseWriter, r *http.Request) {
	typ := model.OfferType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = model.OfferTypeSpend
	}

	offers, err := s.store.ListActiveOffers(typ)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list offers", "")
		return
	}

	response := make([]OfferInfo, len(offers))
	for i, o := range offers {
		response[i] = OfferInfo{
			ID:               o.ID,
			Type:             string(o.Type),
			Title:            o.Title,
			Amount:           o.Amount,
			RecipientAddress: o.RecipientAddress.Hex(),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
