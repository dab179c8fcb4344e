// Package api provides the HTTP handlers for the trade engine: listing,
// offer, and auction lifecycles, the event feed, and operator admin.
//
// Callers are identified by the X-Caller-Address header; an optional
// X-Origin-Address header distinguishes intermediated calls. Attached
// native value travels in the request body's "value" field.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/market"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/revenue"
	"github.com/nftx/trade-engine/internal/store"
)

// Service handles trade operations. Uses a mutex for serialized mutating
// execution (single-instance). For horizontal scaling, replace with
// distributed locking.
type Service struct {
	engine  *market.Engine
	cfg     *config.Settings
	journal store.Store // optional event feed backing
	mu      sync.Mutex
}

// NewService creates a new trade service. Pass nil for journal if no
// event feed is needed.
func NewService(engine *market.Engine, cfg *config.Settings, journal store.Store) *Service {
	return &Service{engine: engine, cfg: cfg, journal: journal}
}

// --- Request/Response types ---

// CreateListingRequest is the JSON body for POST /orders.
type CreateListingRequest struct {
	Collection     common.Address  `json:"collection"`
	PaymentToken   common.Address  `json:"payment_token"` // zero = native value
	TokenID        uint64          `json:"token_id"`
	Type           string          `json:"type"` // "fixed_price" or "dutch_auction"
	BasePrice      decimal.Decimal `json:"base_price"`
	EndingPrice    decimal.Decimal `json:"ending_price"`
	Taker          common.Address  `json:"taker"` // zero = anyone
	ListingTime    time.Time       `json:"listing_time"`
	ExpirationTime time.Time       `json:"expiration_time"`
}

// RepriceRequest is the JSON body for PUT /orders/{orderID}/price.
type RepriceRequest struct {
	NewPrice decimal.Decimal `json:"new_price"`
}

// BuyRequest is the JSON body for POST /orders/{orderID}/buy.
type BuyRequest struct {
	Value decimal.Decimal `json:"value"` // attached native value
}

// CreateOfferRequest is the JSON body for POST /offers.
type CreateOfferRequest struct {
	Collection     common.Address  `json:"collection"`
	PaymentToken   common.Address  `json:"payment_token"`
	TokenID        uint64          `json:"token_id"`
	Price          decimal.Decimal `json:"price"`
	ExpirationTime time.Time       `json:"expiration_time"`
	Value          decimal.Decimal `json:"value"`
}

// CreateAuctionRequest is the JSON body for POST /auctions.
type CreateAuctionRequest struct {
	Collection       common.Address  `json:"collection"`
	PaymentToken     common.Address  `json:"payment_token"`
	TokenID          uint64          `json:"token_id"`
	BasePrice        decimal.Decimal `json:"base_price"`
	MinimalIncrement int64           `json:"minimal_increment"`
	BuyNowThreshold  decimal.Decimal `json:"buy_now_threshold"`
	ListingTime      time.Time       `json:"listing_time"`
	ExpirationTime   time.Time       `json:"expiration_time"`
}

// BidRequest is the JSON body for POST /auctions/{auctionID}/bids.
type BidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Value  decimal.Decimal `json:"value"`
}

// --- Caller identity ---

// caller builds the call envelope from request headers. X-Caller-Address
// is mandatory; X-Origin-Address defaults to the caller (a direct call).
func caller(r *http.Request, value decimal.Decimal) (chain.Call, error) {
	sender := r.Header.Get("X-Caller-Address")
	if !common.IsHexAddress(sender) {
		return chain.Call{}, errors.New("X-Caller-Address header must be a hex address")
	}
	call := chain.Call{Sender: common.HexToAddress(sender), Value: value}
	call.Origin = call.Sender
	if origin := r.Header.Get("X-Origin-Address"); origin != "" {
		if !common.IsHexAddress(origin) {
			return chain.Call{}, errors.New("X-Origin-Address header must be a hex address")
		}
		call.Origin = common.HexToAddress(origin)
	}
	return call, nil
}

// --- Listing handlers ---

// CreateListing handles POST /api/v1/orders
func (s *Service) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	typ, err := parseOrderType(req.Type)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	id, err := s.engine.CreateListing(r.Context(), call, market.ListingParams{
		Collection:     req.Collection,
		PaymentToken:   req.PaymentToken,
		TokenID:        req.TokenID,
		Type:           typ,
		BasePrice:      req.BasePrice,
		EndingPrice:    req.EndingPrice,
		Taker:          req.Taker,
		ListingTime:    req.ListingTime,
		ExpirationTime: req.ExpirationTime,
	})
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	order, _ := s.engine.Order(id)
	writeJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /api/v1/orders
func (s *Service) ListOrders(w http.ResponseWriter, _ *http.Request) {
	orders := s.engine.Orders()
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	order, err := s.engine.Order(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrderPrice handles GET /api/v1/orders/{orderID}/price
// Returns the amount currently due, Dutch decay applied.
func (s *Service) GetOrderPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	price, err := s.engine.Quote(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"price": price})
}

// Reprice handles PUT /api/v1/orders/{orderID}/price
func (s *Service) Reprice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req RepriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err = s.engine.Reprice(r.Context(), call, id, req.NewPrice)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	order, _ := s.engine.Order(id)
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err = s.engine.CancelOrder(r.Context(), call, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	order, _ := s.engine.Order(id)
	writeJSON(w, http.StatusOK, order)
}

// Buy handles POST /api/v1/orders/{orderID}/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, req.Value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	breakdown, err := s.engine.ExecuteBuy(r.Context(), call, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// --- Offer handlers ---

// CreateOffer handles POST /api/v1/offers
func (s *Service) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, req.Value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	id, err := s.engine.CreateOffer(r.Context(), call, market.OfferParams{
		Collection:     req.Collection,
		PaymentToken:   req.PaymentToken,
		TokenID:        req.TokenID,
		Price:          req.Price,
		ExpirationTime: req.ExpirationTime,
	})
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	offer, _ := s.engine.Offer(id)
	writeJSON(w, http.StatusCreated, offer)
}

// ListOffers handles GET /api/v1/offers
func (s *Service) ListOffers(w http.ResponseWriter, _ *http.Request) {
	offers := s.engine.Offers()
	if offers == nil {
		offers = []model.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

// GetOffer handles GET /api/v1/offers/{offerID}
func (s *Service) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	offer, err := s.engine.Offer(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// AcceptOffer handles POST /api/v1/offers/{offerID}/accept
func (s *Service) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	breakdown, err := s.engine.AcceptOffer(r.Context(), call, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// CancelOffer handles DELETE /api/v1/offers/{offerID}
func (s *Service) CancelOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err = s.engine.CancelOffer(r.Context(), call, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	offer, _ := s.engine.Offer(id)
	writeJSON(w, http.StatusOK, offer)
}

// --- Auction handlers ---

// CreateAuction handles POST /api/v1/auctions
func (s *Service) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	id, err := s.engine.CreateAuction(r.Context(), call, market.AuctionParams{
		Collection:       req.Collection,
		PaymentToken:     req.PaymentToken,
		TokenID:          req.TokenID,
		BasePrice:        req.BasePrice,
		MinimalIncrement: req.MinimalIncrement,
		BuyNowThreshold:  req.BuyNowThreshold,
		ListingTime:      req.ListingTime,
		ExpirationTime:   req.ExpirationTime,
	})
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	auction, _ := s.engine.Auction(id)
	writeJSON(w, http.StatusCreated, auction)
}

// ListAuctions handles GET /api/v1/auctions
func (s *Service) ListAuctions(w http.ResponseWriter, _ *http.Request) {
	auctions := s.engine.Auctions()
	if auctions == nil {
		auctions = []model.Auction{}
	}
	writeJSON(w, http.StatusOK, auctions)
}

// GetAuction handles GET /api/v1/auctions/{auctionID}
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	auction, err := s.engine.Auction(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auction)
}

// Bid handles POST /api/v1/auctions/{auctionID}/bids
func (s *Service) Bid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, req.Value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	seq, err := s.engine.Bid(r.Context(), call, id, req.Amount)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	auction, _ := s.engine.Auction(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bid_seq": seq, // 0 means the bid settled the auction via buy-now
		"auction": auction,
	})
}

// SettleAuction handles POST /api/v1/auctions/{auctionID}/settle
func (s *Service) SettleAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err = s.engine.Settle(r.Context(), call, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	auction, _ := s.engine.Auction(id)
	writeJSON(w, http.StatusOK, auction)
}

// --- Event feed ---

// ListEvents handles GET /api/v1/events?limit=N
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, "event feed not configured", http.StatusNotFound)
		return
	}
	events, err := s.journal.ListEvents(r.Context(), feedLimit(r))
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListCollectionEvents handles GET /api/v1/events/collection/{address}
func (s *Service) ListCollectionEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, "event feed not configured", http.StatusNotFound)
		return
	}
	addr := chi.URLParam(r, "address")
	if !common.IsHexAddress(addr) {
		writeError(w, "collection must be a hex address", http.StatusBadRequest)
		return
	}
	events, err := s.journal.ListEventsByCollection(r.Context(), common.HexToAddress(addr), feedLimit(r))
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func feedLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return limit
}

// --- Helpers ---

func parseOrderType(s string) (model.OrderType, error) {
	switch s {
	case "fixed_price":
		return model.TypeFixedPrice, nil
	case "dutch_auction":
		return model.TypeDutchAuction, nil
	default:
		return model.TypeNone, errors.New(`type must be "fixed_price" or "dutch_auction"`)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, name+" must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrBadState), errors.Is(err, market.ErrReentered):
		status = http.StatusConflict
	case errors.Is(err, market.ErrTransferFailed), errors.Is(err, revenue.ErrPayment):
		status = http.StatusBadGateway
	case errors.Is(err, market.ErrPaused):
		status = http.StatusServiceUnavailable
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
