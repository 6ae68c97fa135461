package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/crypto-assistant/internal/logging"
)

// queryInt parses an integer parameter. Missing or malformed values are 0
// so the service applies its default.
func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// handleTopCoins handles GET /api/crypto/top and /api/crypto/top/{count}
func (s *Server) handleTopCoins(w http.ResponseWriter, r *http.Request) {
	count := queryInt(mux.Vars(r)["count"])

	coins, cached, err := s.market.TopCoins(r.Context(), count)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{
		Success: true,
		Cached:  boolPtr(cached),
		Count:   intPtr(len(coins)),
		Data:    coins,
	})
}

// handleAllCoins handles GET /api/crypto/all
func (s *Server) handleAllCoins(w http.ResponseWriter, r *http.Request) {
	listing, cached, err := s.market.AllCoins(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{
		Success: true,
		Cached:  boolPtr(cached),
		Count:   intPtr(len(listing)),
		Data:    listing,
	})
}

// handleGetCoin handles GET /api/crypto/{coinId}
func (s *Server) handleGetCoin(w http.ResponseWriter, r *http.Request) {
	coin, cached, err := s.market.Coin(r.Context(), mux.Vars(r)["coinId"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{Success: true, Cached: boolPtr(cached), Data: coin})
}

// handleGetHistory handles GET /api/crypto/{coinId}/history?days=N
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r.URL.Query().Get("days"))

	series, cached, err := s.market.History(r.Context(), mux.Vars(r)["coinId"], days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{Success: true, Cached: boolPtr(cached), Data: series})
}

// handleGetTicks handles GET /api/crypto/{coinId}/ticks?hours=N
func (s *Server) handleGetTicks(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r.URL.Query().Get("hours"))

	ticks, err := s.market.Ticks(r.Context(), mux.Vars(r)["coinId"], hours)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{Success: true, Count: intPtr(len(ticks)), Data: ticks})
}

// handleRefresh handles POST /api/crypto/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Info("Manual refresh triggered")

	result, err := s.market.Refresh(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, Envelope{
		Success: true,
		Message: "Cryptocurrency data refreshed successfully",
		Count:   intPtr(result.Fetched),
		Data:    result,
	})
}
