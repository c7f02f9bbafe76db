package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"ispledger/internal/auth"
	"ispledger/internal/backup"
	"ispledger/internal/core"
	"ispledger/internal/diagram"
	"ispledger/internal/log"
	"ispledger/internal/middleware/ratelimit"
	"ispledger/internal/middleware/security"
	"ispledger/internal/middleware/trace"
	"ispledger/internal/report"
	"ispledger/internal/storage"
	"ispledger/internal/store"
)

// Backups is the part of the backup service exposed over HTTP.
type Backups interface {
	Push(ctx context.Context) ([]backup.Result, error)
	List(ctx context.Context) ([]backup.Object, error)
	Pull(ctx context.Context, name string) (core.GlobalState, error)
	Delete(ctx context.Context, id string) error
}

// BackupLog lists recorded backup attempts.
type BackupLog interface {
	RecentBackups(ctx context.Context, limit int) ([]storage.BackupLogEntry, error)
}

// Metrics observes requests and serves the scrape endpoint.
type Metrics interface {
	trace.Observer
	Handler() http.Handler
}

// Deps are the collaborators of the API server. Store, Tokens and Logger
// are required.
type Deps struct {
	Store          *store.Store
	Reports        *report.Service
	Backups        Backups
	BackupLog      BackupLog
	Tokens         *auth.Tokens
	Metrics        Metrics
	Ready          func(ctx context.Context) error
	Logger         *log.Logger
	RateLimit      ratelimit.Config
	TrustedProxies []string
}

type Server struct {
	http.Server

	store     *store.Store
	reports   *report.Service
	backups   Backups
	backupLog BackupLog
	tokens    *auth.Tokens
	metrics   Metrics
	ready     func(ctx context.Context) error
	logger    *log.Logger

	validate *validator.Validate
	limiter  *ratelimit.Limiter
	detector *security.Detector

	// The diagram editor keeps undo history between requests.
	editorMu   sync.Mutex
	editor     *diagram.Editor
	editorBase core.DiagramState // last diagram the editor saved

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector, err := security.NewDetector(deps.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	rlConfig := deps.RateLimit
	if rlConfig.RequestsPerSecond <= 0 {
		rlConfig = ratelimit.DefaultConfig()
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		store:     deps.Store,
		reports:   deps.Reports,
		backups:   deps.Backups,
		backupLog: deps.BackupLog,
		tokens:    deps.Tokens,
		metrics:   deps.Metrics,
		ready:     deps.Ready,
		logger:    logger,
		validate:  newValidator(),
		limiter:   ratelimit.NewLimiter(rlConfig),
		detector:  detector,
	}
	if s.reports == nil {
		s.reports = report.NewService(nil, logger.Logger)
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var observer trace.Observer = nopObserver{}
	if s.metrics != nil {
		observer = s.metrics
	}
	var handler http.Handler = trace.NewMiddleware(observer).Wrap(mux)
	handler = log.Middleware(logger, detector.ClientIP)(handler)
	handler = s.limiter.Middleware(detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		errorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded").Write(w)
	})(handler)
	handler = detector.Middleware(logger.WithComponent(log.ComponentSecurity))(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	s.Handler = handler
	return s, nil
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, int, time.Duration) {}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/recovery", s.handleRecoveryQuestion)
	mux.HandleFunc("POST /api/recovery", s.handleRecover)
	mux.Handle("POST /api/password", s.authed(s.handleChangePassword))

	mux.Handle("GET /api/state", s.authed(s.handleState))
	mux.Handle("GET /api/dashboard", s.authed(s.handleDashboard))
	mux.Handle("PUT /api/view-month", s.authed(s.handleViewMonth))
	mux.Handle("POST /api/rollover", s.authed(s.handleRollover))

	mux.Handle("GET /api/clients", s.authed(s.handleListClients))
	mux.Handle("POST /api/clients", s.authed(s.handleCreateClient))
	mux.Handle("POST /api/clients/import", s.authed(s.handleImportClients))
	mux.Handle("GET /api/clients/{id}", s.authed(s.handleGetClient))
	mux.Handle("PUT /api/clients/{id}", s.authed(s.handleUpdateClient))
	mux.Handle("DELETE /api/clients/{id}", s.authed(s.handleDeleteClient))
	mux.Handle("POST /api/clients/{id}/left", s.authed(s.handleClientLeft))
	mux.Handle("POST /api/clients/{id}/restore", s.authed(s.handleClientRestore))
	mux.Handle("POST /api/clients/{id}/assets", s.authed(s.handleAssignAsset))
	mux.Handle("DELETE /api/clients/{id}/assets/{assetID}", s.authed(s.handleReturnAsset))

	mux.Handle("GET /api/records", s.authed(s.handleListRecords))
	mux.Handle("GET /api/records/export", s.authed(s.handleExportRecords))
	mux.Handle("POST /api/records/bulk-paid", s.authed(s.handleBulkPaid))
	mux.Handle("POST /api/records/delete", s.authed(s.handleDeleteRecords))
	mux.Handle("PUT /api/records/{id}/payment", s.authed(s.handlePayment))
	mux.Handle("PATCH /api/records/{id}", s.authed(s.handleAdjustRecord))

	mux.Handle("GET /api/expenses", s.authed(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.authed(s.handleCreateExpense))
	mux.Handle("PUT /api/expenses/{id}", s.authed(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", s.authed(s.handleDeleteExpense))
	mux.Handle("GET /api/ledger", s.authed(s.handleLedger))
	mux.Handle("GET /api/ledger/summary", s.authed(s.handleLedgerSummary))
	mux.Handle("GET /api/reports/statement", s.authed(s.handleStatement))
	mux.Handle("GET /api/reports/areas", s.authed(s.handleAreas))
	mux.Handle("GET /api/reports/growth", s.authed(s.handleGrowth))

	mux.Handle("GET /api/inventory", s.authed(s.handleListItems))
	mux.Handle("POST /api/inventory", s.authed(s.handleCreateItem))
	mux.Handle("PUT /api/inventory/{id}", s.authed(s.handleUpdateItem))
	mux.Handle("DELETE /api/inventory/{id}", s.authed(s.handleDeleteItem))
	mux.Handle("POST /api/inventory/{id}/restock", s.authed(s.handleRestock))
	mux.Handle("POST /api/inventory/{id}/stock-out", s.authed(s.handleStockOut))
	mux.Handle("GET /api/inventory/history", s.authed(s.handleInventoryHistory))

	mux.Handle("GET /api/diagram", s.authed(s.handleGetDiagram))
	mux.Handle("PUT /api/diagram", s.authed(s.handlePutDiagram))
	mux.Handle("POST /api/diagram/nodes", s.authed(s.handleAddNode))
	mux.Handle("PATCH /api/diagram/nodes/{id}", s.authed(s.handleUpdateNode))
	mux.Handle("DELETE /api/diagram/nodes/{id}", s.authed(s.handleRemoveNode))
	mux.Handle("POST /api/diagram/nodes/{id}/fan-out", s.authed(s.handleFanOut))
	mux.Handle("POST /api/diagram/nodes/{id}/inventory", s.authed(s.handleAssignToNode))
	mux.Handle("POST /api/diagram/links", s.authed(s.handleLink))
	mux.Handle("PATCH /api/diagram/links/{id}", s.authed(s.handleUpdateLink))
	mux.Handle("DELETE /api/diagram/links/{id}", s.authed(s.handleUnlink))
	mux.Handle("PUT /api/diagram/view", s.authed(s.handleSetView))
	mux.Handle("POST /api/diagram/undo", s.authed(s.handleUndo))
	mux.Handle("POST /api/diagram/redo", s.authed(s.handleRedo))

	mux.Handle("GET /api/settings", s.authed(s.handleGetSettings))
	mux.Handle("PATCH /api/settings", s.authed(s.handlePatchSettings))

	mux.Handle("GET /api/backups", s.authed(s.handleListBackups))
	mux.Handle("POST /api/backups", s.authed(s.handlePushBackup))
	mux.Handle("POST /api/backups/restore", s.authed(s.handleRestoreBackup))
	mux.Handle("DELETE /api/backups/{id}", s.authed(s.handleDeleteBackup))
	mux.Handle("GET /api/backups/log", s.authed(s.handleBackupLog))
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Failure(r.Context(), "Readiness check failed", err)
			errorResponse(http.StatusServiceUnavailable, log.ErrorTypeDatabase, "not ready").Write(w)
			return
		}
	}
	OK(map[string]string{"status": "ready"}).Write(w)
}
