package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/backup"
	"github.com/canvashq/canvas/internal/economy"
	"github.com/canvashq/canvas/internal/governance"
	"github.com/canvashq/canvas/internal/handler"
	"github.com/canvashq/canvas/internal/middleware"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
	ws "github.com/canvashq/canvas/internal/websocket"
)

// Config holds the server-level knobs pulled from the main configuration.
type Config struct {
	VoteBaseCost    decimal.Decimal
	MaxVoteStrength int
	BackupConfig    backup.Config
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	accountH      *handler.AccountHandler
	taskH         *handler.TaskHandler
	scenarioH     *handler.ScenarioHandler
	proposalH     *handler.ProposalHandler
	adminH        *handler.AdminHandler
	configSvc     *economy.ConfigService
	backupManager *backup.Manager
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	accountStore := store.NewAccountStore(db)
	ledgerStore := store.NewLedgerStore(db)
	taskStore := store.NewTaskStore(db)
	scenarioStore := store.NewScenarioStore(db)
	proposalStore := store.NewProposalStore(db)
	econConfigStore := store.NewEconConfigStore(db)
	backupStore := store.NewBackupStore(db)

	// Notices go to the log and to every websocket subscriber.
	publisher := notice.MultiPublisher{
		notice.NewLogPublisher(logger.With("component", "notice")),
		ws.NewHubPublisher(hub),
	}

	taskEngine := economy.NewTaskEngine(db, taskStore, ledgerStore, logger.With("component", "tasks"))
	consumptionEngine := economy.NewConsumptionEngine(db, scenarioStore, accountStore, ledgerStore, logger.With("component", "consumption"))
	airdropper := economy.NewAirdropper(db, accountStore, ledgerStore, publisher, logger.With("component", "airdrop"))
	configSvc := economy.NewConfigService(db, econConfigStore, taskStore, scenarioStore, publisher, logger.With("component", "config"))

	votingEngine := governance.NewVotingEngine(db, proposalStore, accountStore, ledgerStore, governance.Config{
		BaseCost:    cfg.VoteBaseCost,
		MaxStrength: cfg.MaxVoteStrength,
	}, logger.With("component", "voting"))
	proposalAdmin := governance.NewProposalAdmin(proposalStore, publisher, logger.With("component", "proposals"))

	backupMgr := backup.NewManager(cfg.BackupConfig, db, backupStore, logger.With("component", "backup"), func(s backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(s.State),
			Extra: map[string]any{
				"in_progress": s.InProgress,
				"error":       s.Error,
			},
		})
	})

	return &Server{
		db:            db,
		hub:           hub,
		accountH:      handler.NewAccountHandler(accountStore, ledgerStore, logger.With("component", "accounts")),
		taskH:         handler.NewTaskHandler(taskStore, taskEngine, hub, logger.With("component", "tasks")),
		scenarioH:     handler.NewScenarioHandler(scenarioStore, consumptionEngine, hub, logger.With("component", "scenarios")),
		proposalH:     handler.NewProposalHandler(proposalStore, consumptionEngine, votingEngine, proposalAdmin, ledgerStore, hub, logger.With("component", "proposals")),
		adminH:        handler.NewAdminHandler(configSvc, airdropper, backupStore, backupMgr, hub, logger.With("component", "admin")),
		configSvc:     configSvc,
		backupManager: backupMgr,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// ConfigService returns the config service so main can schedule the
// activation sweep.
func (s *Server) ConfigService() *economy.ConfigService {
	return s.configSvc
}

// BackupManager returns the backup manager for lifecycle control.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Accounts and the ledger
	mux.HandleFunc("POST /api/accounts", s.accountH.Create)
	mux.HandleFunc("GET /api/accounts", s.accountH.List)
	mux.HandleFunc("GET /api/accounts/{id}", s.accountH.Get)
	mux.HandleFunc("GET /api/accounts/{id}/history", s.accountH.History)
	mux.HandleFunc("GET /api/feed", s.accountH.Feed)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks/{key}/complete", s.rateLimited(s.taskH.Complete))
	mux.HandleFunc("GET /api/accounts/{id}/completions", s.taskH.ListCompletions)

	// Consumption scenarios
	mux.HandleFunc("GET /api/scenarios", s.scenarioH.List)
	mux.HandleFunc("POST /api/scenarios/{key}/purchase", s.rateLimited(s.scenarioH.Purchase))
	mux.HandleFunc("GET /api/accounts/{id}/effects", s.scenarioH.ActiveEffects)

	// Governance
	mux.HandleFunc("POST /api/proposals", s.rateLimited(s.proposalH.Create))
	mux.HandleFunc("GET /api/proposals", s.proposalH.List)
	mux.HandleFunc("GET /api/proposals/{id}", s.proposalH.Get)
	mux.HandleFunc("POST /api/proposals/{id}/votes", s.rateLimited(s.proposalH.Vote))
	mux.HandleFunc("GET /api/proposals/{id}/tally", s.proposalH.Tally)
	mux.HandleFunc("GET /api/proposals/{id}/permission", s.proposalH.CheckPermission)
	mux.HandleFunc("POST /api/proposals/{id}/activate", s.proposalH.Activate)
	mux.HandleFunc("POST /api/proposals/{id}/reject", s.proposalH.Reject)
	mux.HandleFunc("POST /api/proposals/{id}/finalize", s.proposalH.Finalize)

	// Admin
	mux.HandleFunc("POST /api/admin/config", s.adminH.ScheduleChange)
	mux.HandleFunc("POST /api/admin/config/active", s.adminH.SetActive)
	mux.HandleFunc("GET /api/admin/config", s.adminH.ListConfigChanges)
	mux.HandleFunc("POST /api/admin/airdrop", s.adminH.Airdrop)
	mux.HandleFunc("GET /api/admin/backups/status", s.adminH.BackupStatus)
	mux.HandleFunc("POST /api/admin/backups", s.adminH.BackupNow)
	mux.HandleFunc("GET /api/admin/backups", s.adminH.BackupHistory)
	mux.HandleFunc("GET /api/admin/backups/{id}/download", s.adminH.BackupDownload)

	// Live transparency feed
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 60, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
