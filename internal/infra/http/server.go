package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"seald/internal/config"
	"seald/internal/domain"
	"seald/internal/infra/auditpg"
	"seald/internal/infra/auth/header"
	"seald/internal/infra/auth/rbac"
	"seald/internal/infra/db"
	"seald/internal/infra/locks"
	"seald/internal/infra/memstore"
	"seald/internal/infra/policyopa"
	"seald/internal/infra/ratelimit"
	"seald/internal/simulate"
	"seald/internal/usecase"

	"github.com/gin-gonic/gin"
)

// Authenticator resolves the calling principal from a request.
type Authenticator interface {
	Authenticate(c *gin.Context) (domain.Principal, error)
}

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	drafts    *usecase.DraftService
	seal      *usecase.SealEngine
	evidence  *usecase.EvidenceService
	rehearser *simulate.Rehearser
	audit     *usecase.AuditEmitter
	caps      config.CapabilitySet
	build     domain.BuildInfo

	auditStore *auditpg.Store
	redisLock  *locks.RedisLocker

	authenticator Authenticator
	authorizer    domain.Authorizer
	initErr       error

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

// NewServer wires the service against postgres when store has a
// database, and against in-memory stores otherwise.
func NewServer(cfg config.Config, store *db.Store) *Server {
	s := &Server{cfg: cfg, store: store, r: newEngine()}
	s.initDeps()
	s.initRateLimit(nil)
	s.initAuth()
	s.routes()
	return s
}

type ServerDeps struct {
	Drafts        *usecase.DraftService
	Seal          *usecase.SealEngine
	Evidence      *usecase.EvidenceService
	Rehearser     *simulate.Rehearser
	Audit         *usecase.AuditEmitter
	Capabilities  *config.CapabilitySet
	Authenticator Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	s := &Server{
		cfg:           cfg,
		r:             newEngine(),
		drafts:        deps.Drafts,
		seal:          deps.Seal,
		evidence:      deps.Evidence,
		rehearser:     deps.Rehearser,
		audit:         deps.Audit,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
		build:         buildInfo(cfg),
	}
	if deps.Capabilities != nil {
		s.caps = *deps.Capabilities
	} else {
		s.caps = config.DefaultCapabilities().For(cfg.SealEnv)
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), correlationMiddleware())
	return r
}

func buildInfo(cfg config.Config) domain.BuildInfo {
	return domain.BuildInfo{BuildID: cfg.BuildID, ContractVersion: cfg.ContractVersion}
}

func (s *Server) initDeps() {
	s.build = buildInfo(s.cfg)

	caps, err := config.LoadCapabilities(s.cfg.CapabilitiesFile)
	if err != nil {
		s.initErr = err
		caps = config.DefaultCapabilities()
	}
	s.caps = caps.For(s.cfg.SealEnv)

	var (
		drafts   usecase.DraftRepository
		ledger   usecase.EvidenceLedger
		bindings usecase.BindingResolver
		auditLog usecase.AuditRepository
	)
	if s.store.Enabled() {
		drafts = s.store.Drafts()
		ledger = s.store.Ledger()
		bindings = s.store.Bindings()
		auditStore, err := auditpg.NewStore(s.cfg)
		if err != nil {
			s.initErr = errors.Join(s.initErr, err)
		} else {
			s.auditStore = auditStore
			auditLog = auditStore.AuditLog()
		}
	} else {
		mem := memstore.New()
		drafts = mem.Drafts()
		ledger = mem.Ledger()
		bindings = mem.Bindings()
	}
	if auditLog == nil {
		auditLog = memstore.NewAuditLog()
	}
	s.audit = usecase.NewAuditEmitter(auditLog, nil, s.cfg.AuditQueueSize)

	var locker usecase.Locker = locks.NewMemoryLocker()
	if s.cfg.RedisAddr != "" {
		if redisLock, err := locks.NewRedisLocker(context.Background(), s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB); err == nil {
			s.redisLock = redisLock
			locker = redisLock
		} else {
			log.Printf("redis seal lock unavailable, using in-process lock: %v", err)
		}
	}

	policy, err := policyopa.NewEngine(context.Background(), s.cfg.SealPolicyPath)
	if err != nil {
		s.initErr = errors.Join(s.initErr, fmt.Errorf("load quarantine policy: %w", err))
	}

	s.drafts = usecase.NewDraftService(drafts, s.audit)
	s.drafts.Timeout = s.cfg.RequestTimeout()
	s.drafts.DedupeWindow = s.cfg.DraftDedupeWindow()

	s.seal = usecase.NewSealEngine(drafts, ledger, s.audit)
	s.seal.Bindings = bindings
	s.seal.Locks = locker
	s.seal.Build = s.build
	s.seal.Timeout = s.cfg.RequestTimeout()
	s.seal.LockTTL = s.cfg.SealLockTTL()
	if policy != nil {
		s.seal.Policy = policy
	}

	s.evidence = usecase.NewEvidenceService(ledger, s.audit, s.build)
	s.evidence.Timeout = s.cfg.RequestTimeout()

	s.rehearser = usecase.NewRehearser(s.build)
}

func (s *Server) initAuth() {
	switch s.cfg.AuthMode {
	case "", "header":
		if s.authenticator == nil {
			s.authenticator = header.NewAuthenticator()
		}
	case "none":
		if s.authenticator == nil {
			s.authenticator = header.NewLocalAuthenticator(domain.Principal{
				Subject:  "local-user",
				TenantID: "local",
				Roles:    []string{rbac.RoleSubmitter},
			})
		}
	default:
		s.initErr = errors.Join(s.initErr, fmt.Errorf("unsupported auth mode %q", s.cfg.AuthMode))
	}
	if s.authorizer == nil {
		s.authorizer = rbac.NewAuthorizer()
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store.Enabled() {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"mode":             dbMode,
			"environment":      s.caps.Environment(),
			"build_id":         s.build.BuildID,
			"contract_version": s.build.ContractVersion,
		})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/drafts", s.handleCreateDraft)
		v1.PUT("/drafts/:draft_id", s.handleUpdateDraft)
		v1.GET("/drafts/:draft_id", s.handleGetDraftForSeal)
		v1.DELETE("/drafts/:draft_id", s.handleAbandonDraft)
		v1.POST("/drafts/:draft_id/attachments", s.handleAttachPayload)
		v1.POST("/drafts/:draft_id/seal", s.handleSealDraft)

		v1.GET("/evidence/:evidence_id", s.handleGetReceipt)
		v1.POST("/evidence/:evidence_id/review", s.handleReviewEvidence)
		v1.POST("/evidence/:evidence_id/content", s.handleLinkContent)

		v1.POST("/simulate", s.handleSimulate)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	httpSrv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// Close drains the audit queue and releases connections.
func (s *Server) Close(ctx context.Context) error {
	var err error
	if s.audit != nil {
		err = s.audit.Close(ctx)
	}
	if s.auditStore != nil {
		s.auditStore.Close()
	}
	if s.redisLock != nil {
		err = errors.Join(err, s.redisLock.Close())
	}
	return err
}
