package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/velabrowser/vela/backend/internal/api/middleware"
	"github.com/velabrowser/vela/backend/internal/events"
	vhttp "github.com/velabrowser/vela/backend/internal/http"
	"github.com/velabrowser/vela/backend/internal/infrastructure/config"
	"github.com/velabrowser/vela/backend/internal/infrastructure/monitoring"
	"github.com/velabrowser/vela/backend/internal/logging"
	"github.com/velabrowser/vela/backend/internal/pagescript"
	"github.com/velabrowser/vela/backend/internal/providers/adblock"
	"github.com/velabrowser/vela/backend/internal/providers/credentials"
	"github.com/velabrowser/vela/backend/internal/providers/credentials/envelope"
	"github.com/velabrowser/vela/backend/internal/service"
	"github.com/velabrowser/vela/backend/internal/shared/paths"
	"github.com/velabrowser/vela/backend/internal/ws"
)

// Server wires the credential and adblock subsystems behind the local
// HTTP/WebSocket surface the shell talks to.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	log     *logging.Logger
	metrics *monitoring.Metrics
	bus     *events.Bus
	stopped chan struct{}
}

// NewServer builds the full backend. metrics may be nil (tests); the page
// scripts are built and parse-checked here so a broken payload fails startup
// instead of reaching a page.
func NewServer(cfg *config.Config, metrics *monitoring.Metrics, log *logging.Logger) (*Server, error) {
	profile := paths.DefaultProfile()
	if cfg.Profile.Dir != "" {
		profile = paths.Profile{Dir: cfg.Profile.Dir}
	}
	if err := profile.Ensure(); err != nil {
		return nil, fmt.Errorf("profile directory: %w", err)
	}

	bus := events.NewBus()

	// Keystore is nil here: no OS secret facility is wired on this build,
	// so the envelope probe selects the file-keyed cipher.
	env := envelope.New(nil, profile.VaultKey(), log)
	store := credentials.NewStore(env, profile.Credentials(), profile.NeverSave(), log)

	var icons *credentials.IconFetcher
	if cfg.Vault.FetchIcons {
		icons = credentials.NewIconFetcher(log)
	}

	auth := NewChallengeAuthenticator(bus)
	filler := NewScriptFiller(bus)
	controller := credentials.NewController(store, bus, auth, filler, credentials.ControllerConfig{
		PromptTimeout:  cfg.Vault.PromptTimeout,
		ObfuscateChars: cfg.Vault.ObfuscateChars,
	}, log)

	engine := adblock.NewEngine(profile.BlockState(), cfg.Adblock.EnabledDefault, bus, metrics, log)

	cosmeticCSS, err := pagescript.BuildCosmeticCSS()
	if err != nil {
		return nil, fmt.Errorf("cosmetic css: %w", err)
	}
	cosmeticJS, err := pagescript.BuildBehaviorScript(adblock.LoaderMarkers())
	if err != nil {
		return nil, fmt.Errorf("behavior script: %w", err)
	}
	buildAgent := func(tabID string) (string, error) {
		return pagescript.BuildFormAgent(pagescript.FormAgentOptions{TabID: tabID})
	}
	// Self-check: render one agent now so template errors surface at boot.
	if _, err := buildAgent("boot-check"); err != nil {
		return nil, fmt.Errorf("form agent: %w", err)
	}

	registry := service.NewRegistry()
	if err := registry.Register(credentials.NewProvider(store, controller, icons, metrics)); err != nil {
		return nil, err
	}
	if err := registry.Register(adblock.NewProvider(engine, cosmeticCSS, cosmeticJS)); err != nil {
		return nil, err
	}

	wsHandler := ws.NewHandler(controller, bus, metrics, ws.RateConfig{
		MessagesPerSecond: float64(cfg.RateLimit.MessagesPerSecond),
		Burst:             cfg.RateLimit.Burst,
		Enabled:           cfg.RateLimit.Enabled,
	}, log)

	handlers := vhttp.NewHandlers(registry, engine, auth, buildAgent, cosmeticCSS, cosmeticJS)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.GlobalRateLimit(middleware.DefaultRateLimitConfig()))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/services", handlers.ListServices)
	router.POST("/services/execute", handlers.ExecuteService)

	router.POST("/auth/respond", handlers.AuthRespond)

	router.GET("/inject/formagent", handlers.InjectFormAgent)
	router.GET("/inject/cosmetic", handlers.InjectCosmetic)

	router.GET("/ws/page", wsHandler.HandlePageConnection)
	router.GET("/ws/ui", wsHandler.HandleUIConnection)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	return &Server{
		router: router,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:     log,
		metrics: metrics,
		bus:     bus,
		stopped: make(chan struct{}),
	}, nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts serving and blocks until shutdown.
func (s *Server) Run() error {
	if s.metrics != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-s.stopped:
					return
				case <-ticker.C:
					s.metrics.UpdateUptime()
				}
			}
		}()
	}

	s.log.Info("vela backend listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopped)
	err := s.httpSrv.Shutdown(ctx)
	s.log.Sync() //nolint:errcheck // stdout sync failure is unactionable
	return err
}
