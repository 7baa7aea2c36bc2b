package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra"
	"ledger_go/internal/service"

	"github.com/shopspring/decimal"
)

// Thin query/admin plumbing over the core services. Authentication and
// session handling live in the fronting gateway, not here.
func newAPIHandler(wallets *service.WalletService, assets *service.AssetService) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /accounts/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := wallets.Summary(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, snapshot)
	})

	mux.HandleFunc("GET /accounts/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		entries, err := wallets.Entries(r.Context(), r.PathValue("id"), 100)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, entries)
	})

	mux.HandleFunc("POST /accounts/{id}/deposit", func(w http.ResponseWriter, r *http.Request) {
		var req postingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := wallets.Deposit(r.Context(), r.PathValue("id"), req.AssetCode, req.Amount, req.ActorID, req.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("POST /accounts/{id}/withdraw", func(w http.ResponseWriter, r *http.Request) {
		var req postingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := wallets.Withdraw(r.Context(), r.PathValue("id"), req.AssetCode, req.Amount, req.ActorID, req.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("POST /admin/accounts/{id}/adjust", func(w http.ResponseWriter, r *http.Request) {
		var req postingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := wallets.AdminAdjust(r.Context(), r.PathValue("id"), req.AssetCode, req.Amount, req.ActorID, req.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("POST /accounts/{id}/trade", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SellCode   string          `json:"sell_code"`
			SellAmount decimal.Decimal `json:"sell_amount"`
			BuyCode    string          `json:"buy_code"`
			BuyAmount  decimal.Decimal `json:"buy_amount"`
			ActorID    string          `json:"actor_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := wallets.Trade(r.Context(), r.PathValue("id"), req.SellCode, req.SellAmount, req.BuyCode, req.BuyAmount, req.ActorID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("GET /assets", func(w http.ResponseWriter, r *http.Request) {
		list, err := assets.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, list)
	})

	mux.HandleFunc("GET /assets/{code}/history", func(w http.ResponseWriter, r *http.Request) {
		history, err := assets.History(r.Context(), r.PathValue("code"), 500)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, history)
	})

	mux.HandleFunc("GET /assets/{code}/candles", func(w http.ResponseWriter, r *http.Request) {
		candles, err := assets.Candles(r.Context(), r.PathValue("code"), 500)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, candles)
	})

	mux.HandleFunc("POST /admin/assets/{code}/drift", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Target decimal.Decimal `json:"target"`
			Speed  decimal.Decimal `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := assets.SetDriftOverride(r.Context(), r.PathValue("code"), req.Target, req.Speed); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /admin/assets/{code}/drift", func(w http.ResponseWriter, r *http.Request) {
		if err := assets.ClearDriftOverride(r.Context(), r.PathValue("code")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /admin/assets/{code}/simulate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Target    decimal.Decimal `json:"target"`
			WindowSec int             `json:"window_sec"`
			Direction string          `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err := assets.StartSimulation(r.Context(), r.PathValue("code"), req.Target,
			time.Duration(req.WindowSec)*time.Second, req.Direction)
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /admin/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, infra.GlobalMetrics.Snapshot())
	})

	return mux
}

type postingRequest struct {
	AssetCode string          `json:"asset_code"`
	Amount    decimal.Decimal `json:"amount"`
	ActorID   string          `json:"actor_id"`
	Note      string          `json:"note"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrAssetNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
