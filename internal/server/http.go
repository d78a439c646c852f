package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FlashPool/internal/ingestion"
	"FlashPool/internal/observability"
	"FlashPool/internal/persistence"
	"FlashPool/internal/projection"
	"FlashPool/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server serves the HTTP/JSON read API, the admin surface, and the
// operational endpoints (health, metrics).
type Server struct {
	httpServer *http.Server
	addr       string
	logger     zerolog.Logger
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.Service
	IngestService *ingestion.AdminIngestService
	SnapshotMgr   *persistence.SnapshotManager
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

func NewServer(addr string, deps *Deps) *Server {
	s := &Server{
		addr:   addr,
		logger: observability.NewLogger("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/users/{userID}/balance", s.handleGetBalance(deps))
		r.Get("/users/{userID}/journal", s.handleGetJournal(deps))
		r.Get("/pools/{poolID}", s.handleGetPool(deps))
		r.Get("/pools/{poolID}/loans", s.handleListLoans(deps))
		r.Get("/loans/{loanID}", s.handleGetLoan(deps))
		r.Get("/reputation/{borrowerID}", s.handleGetReputation(deps))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", s.handleVerifyIntegrity(deps))
			r.Get("/eventlog", s.handleEventLogInfo(deps))
			r.Post("/rebuild", s.handleRebuildProjections(deps))
			r.Post("/pools", s.handleInjectPool(deps))
			r.Post("/deposits", s.handleInjectDeposit(deps))
			r.Post("/withdrawals", s.handleInjectWithdrawal(deps))
			r.Post("/slots", s.handleInjectSlot(deps))
		})
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Read API ---

func (s *Server) handleGetBalance(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		asset := r.URL.Query().Get("asset")
		if asset == "" {
			asset = "USDC"
		}

		bal, err := deps.QueryService.GetBalance(r.Context(), userID, asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, bal)
	}
}

func (s *Server) handleGetJournal(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		limit := queryInt(r, "limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		var before *int64
		if b := queryInt64(r, "before", 0); b > 0 {
			before = &b
		}

		entries, err := deps.QueryService.GetJournalHistory(r.Context(), userID, limit, before)
		if err != nil {
			s.logger.Error().Err(err).Msg("journal query failed")
			writeError(w, http.StatusInternalServerError, "journal query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
	}
}

func (s *Server) handleGetPool(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolID, err := uuid.Parse(chi.URLParam(r, "poolID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pool id")
			return
		}

		pool, err := deps.QueryService.GetPool(r.Context(), poolID)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("pool query failed")
			writeError(w, http.StatusInternalServerError, "pool query failed")
			return
		}
		writeJSON(w, http.StatusOK, pool)
	}
}

func (s *Server) handleListLoans(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolID, err := uuid.Parse(chi.URLParam(r, "poolID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pool id")
			return
		}

		var status *string
		switch st := r.URL.Query().Get("status"); st {
		case "":
		case "issued", "repaid", "defaulted":
			status = &st
		default:
			writeError(w, http.StatusBadRequest, "status must be issued, repaid or defaulted")
			return
		}

		limit := queryInt(r, "limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		var before *int64
		if b := queryInt64(r, "before", 0); b > 0 {
			before = &b
		}

		loans, err := deps.QueryService.ListLoans(r.Context(), poolID, status, limit, before)
		if err != nil {
			s.logger.Error().Err(err).Msg("loan list query failed")
			writeError(w, http.StatusInternalServerError, "loan list query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loans})
	}
}

func (s *Server) handleGetLoan(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid loan id")
			return
		}

		loan, err := deps.QueryService.GetLoan(r.Context(), loanID)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "loan not found")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("loan query failed")
			writeError(w, http.StatusInternalServerError, "loan query failed")
			return
		}
		writeJSON(w, http.StatusOK, loan)
	}
}

func (s *Server) handleGetReputation(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		borrowerID, err := uuid.Parse(chi.URLParam(r, "borrowerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid borrower id")
			return
		}

		rep, err := deps.QueryService.GetReputation(r.Context(), borrowerID)
		if err != nil {
			s.logger.Error().Err(err).Msg("reputation query failed")
			writeError(w, http.StatusInternalServerError, "reputation query failed")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// --- Admin API ---

func (s *Server) handleVerifyIntegrity(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.QueryService.VerifyIntegrity(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("integrity check failed")
			writeError(w, http.StatusInternalServerError, "integrity check failed")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleEventLogInfo(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latestSeq, err := deps.SnapshotMgr.GetLatestSequence(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "event log query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"last_sequence":  latestSeq,
			"uptime_seconds": int64(time.Since(deps.StartTime).Seconds()),
		})
	}
}

func (s *Server) handleRebuildProjections(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := projection.Rebuild(r.Context(), deps.DB); err != nil {
			s.logger.Error().Err(err).Msg("projection rebuild failed")
			writeError(w, http.StatusInternalServerError, "rebuild failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
	}
}

type injectPoolRequest struct {
	PoolID     string   `json:"pool_id"`
	AdminID    string   `json:"admin_id"`
	TreasuryID string   `json:"treasury_id"`
	Asset      string   `json:"asset"`
	FeeRateBps int64    `json:"fee_rate_bps"`
	AllowList  []string `json:"allow_list,omitempty"`
}

func (s *Server) handleInjectPool(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req injectPoolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		poolID, err := uuid.Parse(req.PoolID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pool_id")
			return
		}
		adminID, err := uuid.Parse(req.AdminID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid admin_id")
			return
		}
		treasuryID, err := uuid.Parse(req.TreasuryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid treasury_id")
			return
		}

		allowList := make([]uuid.UUID, 0, len(req.AllowList))
		for _, raw := range req.AllowList {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid allow_list entry %q", raw))
				return
			}
			allowList = append(allowList, id)
		}

		if err := deps.IngestService.InjectPoolInitialize(r.Context(), poolID, adminID, treasuryID, req.Asset, req.FeeRateBps, allowList); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
	}
}

type injectTransferRequest struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleInjectDeposit(deps *Deps) http.HandlerFunc {
	return s.handleInjectTransfer(deps, deps.IngestService.InjectTokenDeposit)
}

func (s *Server) handleInjectWithdrawal(deps *Deps) http.HandlerFunc {
	return s.handleInjectTransfer(deps, deps.IngestService.InjectTokenWithdraw)
}

func (s *Server) handleInjectTransfer(
	deps *Deps,
	inject func(context.Context, uuid.UUID, string, int64) error,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req injectTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}

		if err := inject(r.Context(), userID, req.Asset, req.Amount); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
	}
}

type injectSlotRequest struct {
	Slot int64 `json:"slot"`
}

func (s *Server) handleInjectSlot(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req injectSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := deps.IngestService.InjectSlotTick(r.Context(), req.Slot); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
