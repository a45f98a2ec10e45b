package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendledger/core/events"
	"lendledger/core/host"
	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/gateway/middleware"
	"lendledger/native/bank"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/observability"
	"lendledger/services/lendingd/archive"
	"lendledger/storage"
)

// HeaderCaller names the principal when authentication is disabled.
const HeaderCaller = "X-Caller"

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine  *lending.Engine
	Store   storage.Database
	Clock   host.Clock
	Pauses  *nativecommon.Pauses
	Quota   nativecommon.Quota
	Archive *archive.Archive

	Auth          *middleware.Authenticator
	AuthEnabled   bool
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig

	FaucetEnabled bool
	FaucetLimit   types.Money
	MetricsPath   string
	Logger        *slog.Logger
}

// Server exposes the lending engine over HTTP. Mutating calls are serialised:
// each one runs in its own host transaction at the clock's current height.
type Server struct {
	engine  *lending.Engine
	store   storage.Database
	clock   host.Clock
	pauses  *nativecommon.Pauses
	quota   nativecommon.Quota
	archive *archive.Archive
	metrics *observability.LendingMetrics
	logger  *slog.Logger

	auth          *middleware.Authenticator
	authEnabled   bool
	limiter       *middleware.RateLimiter
	obs           *middleware.Observability
	cors          middleware.CORSConfig
	faucetEnabled bool
	faucetLimit   types.Money
	metricsPath   string

	mu     sync.RWMutex
	quotas map[crypto.Address]nativecommon.QuotaNow

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil || cfg.Store == nil || cfg.Clock == nil {
		return nil, errors.New("server: engine, store and clock are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{Enabled: false}, logger)
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, logger)
	}
	obs := cfg.Observability
	if obs == nil {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{}, logger)
	}
	pauses := cfg.Pauses
	if pauses == nil {
		pauses = nativecommon.NewPauses()
	}
	cfg.Engine.SetPauses(pauses)
	srv := &Server{
		engine:        cfg.Engine,
		store:         cfg.Store,
		clock:         cfg.Clock,
		pauses:        pauses,
		quota:         cfg.Quota,
		archive:       cfg.Archive,
		metrics:       observability.Lending(),
		logger:        logger,
		auth:          auth,
		authEnabled:   cfg.AuthEnabled,
		limiter:       limiter,
		obs:           obs,
		cors:          cfg.CORS,
		faucetEnabled: cfg.FaucetEnabled,
		faucetLimit:   cfg.FaucetLimit,
		metricsPath:   strings.TrimSpace(cfg.MetricsPath),
		quotas:        make(map[crypto.Address]nativecommon.QuotaNow),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router wrapped in otel instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "lendingd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cors))
	r.Use(s.obs.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(s.identify(s.auth.Middleware()))
			read.Use(s.limiter.Middleware("read"))
			read.Get("/status", s.status)
			read.Get("/loans", s.listLoans)
			read.Get("/loans/{id}", s.getLoan)
			read.Get("/loans/{id}/repayment", s.repaymentQuote)
			read.Get("/loans/{id}/extension", s.extensionInfo)
			read.Get("/loans/{id}/payments", s.paymentInfo)
			read.Get("/loans/{id}/late-fees", s.lateFeeInfo)
			read.Get("/loans/{id}/refinance", s.refinanceInfo)
			read.Get("/loans/{id}/interest", s.interestInfo)
			read.Get("/loans/{id}/payment-structure", s.paymentStructureInfo)
			read.Get("/loans/{id}/events", s.loanEvents)
			read.Get("/users/{addr}", s.userProfile)
			read.Get("/accounts/{addr}/balance", s.balance)
		})

		api.Group(func(write chi.Router) {
			write.Use(s.identify(s.auth.Middleware(middleware.ScopeWrite)))
			write.Use(s.limiter.Middleware("write"))
			write.Post("/loans", s.createLoan)
			write.Post("/loans/{id}/fund", s.fundLoan)
			write.Post("/loans/{id}/repay", s.repayLoan)
			write.Post("/loans/{id}/partial-repay", s.partialRepay)
			write.Post("/loans/{id}/extend", s.extendLoan)
			write.Post("/loans/{id}/refinance", s.refinanceLoan)
			write.Post("/loans/{id}/variable-rate", s.convertToVariable)
			write.Post("/loans/{id}/rate", s.adjustRate)
			write.Post("/loans/{id}/risk", s.updateRisk)
			write.Post("/loans/{id}/compound", s.convertToCompound)
			write.Post("/loans/{id}/simple", s.switchToSimple)
			write.Post("/loans/{id}/interest-only", s.setInterestOnly)
			write.Post("/loans/{id}/principal-and-interest", s.switchToPrincipalAndInterest)
			write.Post("/loans/{id}/late-fees", s.configureLateFees)
			write.Post("/loans/{id}/accrue", s.accrue)
			write.Post("/loans/{id}/default", s.markDefault)
			write.Post("/loans/{id}/liquidate", s.liquidate)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.identify(s.auth.Middleware(middleware.ScopeAdmin)))
			admin.Use(s.limiter.Middleware("write"))
			admin.Post("/owner", s.initOwner)
			admin.Post("/blacklist", s.setBlacklisted)
			admin.Post("/credit-score", s.setCreditScore)
			admin.Post("/withdraw-fees", s.withdrawFees)
			admin.Post("/pause", s.setPaused)
			admin.Post("/clock/advance", s.advanceClock)
			admin.Post("/faucet", s.faucet)
		})
	})
	return r
}

// identify wraps authentication. With auth disabled the caller comes from the
// X-Caller header instead of the token subject.
func (s *Server) identify(authn func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if s.authEnabled {
		return authn
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := strings.TrimSpace(r.Header.Get(HeaderCaller)); raw != "" {
				caller, err := crypto.DecodeAddress(raw)
				if err != nil {
					writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
					return
				}
				r = r.WithContext(middleware.WithCaller(r.Context(), caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerOf(r *http.Request) (crypto.Address, bool) {
	return middleware.CallerFromContext(r.Context())
}

type txResult struct {
	Height uint64      `json:"height"`
	Events []string    `json:"events"`
	Result interface{} `json:"result,omitempty"`
}

// submit runs one mutating ledger call. value is escrowed from the caller
// before fn runs; any error aborts the transaction including the escrow.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, op string, value types.Money, fn func(h lending.Host) (interface{}, error)) {
	s.submitQuoted(w, r, op, func(uint64) (types.Money, error) { return value, nil }, fn)
}

// submitQuoted is submit with the transferred value priced at the height the
// transition executes at.
func (s *Server) submitQuoted(w http.ResponseWriter, r *http.Request, op string, value func(height uint64) (types.Money, error), fn func(h lending.Host) (interface{}, error)) {
	caller, ok := callerOf(r)
	if !ok {
		writeError(w, errMissingCaller)
		return
	}
	result, evs, height, err := s.apply(r.Context(), op, caller, value, fn)
	if err != nil {
		_, kind := classify(err)
		s.metrics.RecordTransition(op, kind)
		if kind == "quota_requests" || kind == "quota_value" {
			observability.ModuleMetrics().RecordThrottle("lending", kind)
		}
		writeError(w, err)
		return
	}
	s.metrics.RecordTransition(op, "")
	names := make([]string, 0, len(evs))
	for _, ev := range evs {
		names = append(names, ev.EventType())
	}
	writeJSON(w, http.StatusOK, txResult{Height: height, Events: names, Result: result})
}

func (s *Server) apply(ctx context.Context, op string, caller crypto.Address, quote func(height uint64) (types.Money, error), fn func(h lending.Host) (interface{}, error)) (interface{}, []events.Event, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.clock.Height()
	value, err := quote(height)
	if err != nil {
		return nil, nil, height, err
	}
	usage, err := s.chargeQuota(caller, height, value)
	if err != nil {
		return nil, nil, height, err
	}
	tx, err := host.Begin(s.store, lending.ModuleAddress, caller, height, value)
	if err != nil {
		return nil, nil, height, err
	}
	result, err := fn(tx)
	if err != nil {
		tx.Abort()
		return nil, nil, height, err
	}
	evs := tx.Events()
	if err := tx.Commit(nil); err != nil {
		return nil, nil, height, fmt.Errorf("server: commit %s: %w", op, err)
	}
	s.quotas[caller] = usage
	for _, ev := range evs {
		s.metrics.RecordEvent(ev.EventType())
	}
	if s.archive != nil {
		if err := s.archive.Record(ctx, evs); err != nil {
			s.logger.Error("archive events", slog.String("op", op), slog.String("error", err.Error()))
		}
	}
	s.refreshGauges(height)
	s.logger.Info("ledger transition",
		slog.String("op", op),
		slog.String("caller", caller.String()),
		slog.Uint64("height", height),
		slog.Int("events", len(evs)))
	return result, evs, height, nil
}

func (s *Server) chargeQuota(caller crypto.Address, height uint64, value types.Money) (nativecommon.QuotaNow, error) {
	amount, ok := value.Uint64()
	if !ok {
		amount = math.MaxUint64
	}
	return nativecommon.CheckQuota(s.quota, s.quota.Epoch(height), s.quotas[caller], 1, amount)
}

func (s *Server) refreshGauges(height uint64) {
	liquidity, err := s.engine.GetTotalLiquidity()
	if err != nil {
		return
	}
	fees, err := s.engine.GetProtocolFees()
	if err != nil {
		return
	}
	total, err := s.engine.GetTotalLoans()
	if err != nil {
		return
	}
	s.metrics.SetPool(moneyFloat(liquidity), moneyFloat(fees), total, height)
}

func moneyFloat(m types.Money) float64 {
	f, _ := new(big.Float).SetInt(m.Big()).Float64()
	return f
}

// credit mints balance for the faucet. It bypasses the engine and is only
// mounted when the faucet is enabled.
func (s *Server) credit(addr crypto.Address, amount types.Money) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bank.New(s.store)
	if err := b.Credit(addr, amount); err != nil {
		return types.Money{}, err
	}
	return b.Balance(addr)
}
