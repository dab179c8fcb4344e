package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Admin handlers. Every endpoint here requires the caller to be the
// configured platform operator.

// PauseRequest is the JSON body for POST /admin/pause.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// FeeRequest is the JSON body for PUT /admin/fee.
type FeeRequest struct {
	Bps         int64           `json:"bps"`
	Beneficiary *common.Address `json:"beneficiary,omitempty"`
}

// RoyaltyRequest is the JSON body for PUT /admin/royalties/{address}.
type RoyaltyRequest struct {
	Beneficiary common.Address `json:"beneficiary"`
	Ratio       int64          `json:"ratio"` // basis points
}

// operatorOnly authenticates the admin caller, or writes an error and
// returns the zero address.
func (s *Service) operatorOnly(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return common.Address{}, false
	}
	if !s.cfg.IsOperator(call.Sender) {
		writeError(w, "caller is not the platform operator", http.StatusForbidden)
		return common.Address{}, false
	}
	return call.Sender, true
}

// SetPaused handles POST /api/v1/admin/pause
func (s *Service) SetPaused(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.operatorOnly(w, r); !ok {
		return
	}
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.cfg.SetPaused(req.Paused)
	slog.Info("pause switch set", "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// SetFee handles PUT /api/v1/admin/fee
func (s *Service) SetFee(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.operatorOnly(w, r); !ok {
		return
	}
	var req FeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.cfg.SetFeeBps(req.Bps); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Beneficiary != nil {
		s.cfg.SetFeeBeneficiary(*req.Beneficiary)
	}
	slog.Info("platform fee updated", "bps", req.Bps)
	writeJSON(w, http.StatusOK, map[string]int64{"bps": req.Bps})
}

// AllowToken handles POST /api/v1/admin/tokens/{address}
func (s *Service) AllowToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.operatorOnly(w, r); !ok {
		return
	}
	addr := chi.URLParam(r, "address")
	if !common.IsHexAddress(addr) {
		writeError(w, "token must be a hex address", http.StatusBadRequest)
		return
	}

	token := common.HexToAddress(addr)
	s.cfg.AllowToken(token)
	slog.Info("payment token allowed", "token", token.Hex())
	writeJSON(w, http.StatusOK, map[string]string{"token": token.Hex()})
}

// RevokeToken handles DELETE /api/v1/admin/tokens/{address}
func (s *Service) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.operatorOnly(w, r); !ok {
		return
	}
	addr := chi.URLParam(r, "address")
	if !common.IsHexAddress(addr) {
		writeError(w, "token must be a hex address", http.StatusBadRequest)
		return
	}

	token := common.HexToAddress(addr)
	s.cfg.RevokeToken(token)
	slog.Info("payment token revoked", "token", token.Hex())
	writeJSON(w, http.StatusOK, map[string]string{"token": token.Hex()})
}

// SetRoyalty handles PUT /api/v1/admin/royalties/{address}
func (s *Service) SetRoyalty(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if !common.IsHexAddress(addr) {
		writeError(w, "collection must be a hex address", http.StatusBadRequest)
		return
	}
	var req RoyaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	call, err := caller(r, decimal.Zero)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Operator authorization happens in the engine, which also emits the
	// royalty event.
	if err := s.engine.SetRoyalty(r.Context(), call, common.HexToAddress(addr),
		req.Beneficiary, req.Ratio); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collection":  common.HexToAddress(addr),
		"beneficiary": req.Beneficiary,
		"ratio":       req.Ratio,
	})
}

// AdminCancelOffer handles DELETE /api/v1/admin/offers/{offerID}
func (s *Service) AdminCancelOffer(w http.ResponseWriter, r *http.Request) {
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
	err = s.engine.AdminCancelOffer(r.Context(), call, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	offer, _ := s.engine.Offer(id)
	writeJSON(w, http.StatusOK, offer)
}
