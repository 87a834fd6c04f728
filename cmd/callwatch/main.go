package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/broadcaster"
	"github.com/goevery/callwatch/internal/handler"
	"github.com/goevery/callwatch/internal/metrics"
	"github.com/goevery/callwatch/internal/notify"
	"github.com/goevery/callwatch/internal/persistence"
	"github.com/goevery/callwatch/internal/persistence/memory"
	"github.com/goevery/callwatch/internal/persistence/mongodb"
	"github.com/goevery/callwatch/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	registry        *prometheus.Registry
	persistence     persistence.Engine
	hub             *broadcaster.Hub
	monitor         *broadcaster.LivenessMonitor
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings, persistenceEngine persistence.Engine) *App {
	registry := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(registry)

	originChecker := server.NewOriginChecker(logger, settings.AllowedOriginList())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	policy := auth.DefaultPolicy()
	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.APIKeyList(), persistenceEngine)

	hub := broadcaster.NewHub(logger, policy, wsMetrics, settings.SendBufferSize)
	dispatcher := broadcaster.NewDispatcher(logger, hub, wsMetrics)
	monitor := broadcaster.NewLivenessMonitor(logger, hub, wsMetrics, clockwork.NewRealClock(), settings.HeartbeatPeriod())
	triggers := notify.NewTriggers(logger, persistenceEngine, dispatcher, policy)

	channelValidator := handler.NewChannelValidator()

	heartbeatHandler := handler.NewHeartbeatHandler()
	subscribeHandler := handler.NewSubscribeHandler(channelValidator, hub)
	unsubscribeHandler := handler.NewUnsubscribeHandler(channelValidator, hub)
	connectHandler := handler.NewConnectHandler(authenticator)
	notifyHandler := handler.NewNotifyHandler(channelValidator, dispatcher, triggers)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		subscribeHandler,
		unsubscribeHandler,
	)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		wsMetrics,
		connectHandler,
		hub,
		router,
	)
	restServer := server.NewRESTServer(
		logger,
		notifyHandler,
		authenticator,
		dispatcher,
	)

	return &App{
		logger,
		settings,
		registry,
		persistenceEngine,
		hub,
		monitor,
		websocketServer,
		restServer,
	}
}

func (a *App) setup(ctx context.Context) error {
	err := a.persistence.Setup(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup persistence: %w", err)
	}

	return nil
}

func (a *App) run(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	mainRouter := mux.NewRouter()
	mainRouter.Handle("/metrics", metrics.Handler(a.registry)).Methods(http.MethodGet)

	router := mainRouter.
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: mainRouter,
	}

	group, groupCtx := errgroup.WithContext(notifyCtx)

	group.Go(func() error {
		a.logger.Info("starting http server",
			zap.String("address", address))

		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		return a.monitor.Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()

		a.logger.Info("stopping http server")

		shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCtxCancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		a.hub.Shutdown()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		a.logger.Info("http server stopped")

		return nil
	})

	return group.Wait()
}

func newPersistenceEngine(ctx context.Context, logger *zap.Logger, settings Settings) (persistence.Engine, func(), error) {
	if settings.MongoDBURI == "" {
		engine, err := newMemoryEngine(settings)
		if err != nil {
			return nil, nil, err
		}

		logger.Warn("MONGODB_URI not set, using in-memory user store",
			zap.Int("users", engine.UserCount()))

		return engine, func() {}, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoDBURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, pingCtxCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCtxCancel()

	err = client.Ping(pingCtx, nil)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	disconnect := func() {
		err := client.Disconnect(context.Background())
		if err != nil {
			logger.Error("failed to disconnect from mongodb", zap.Error(err))
		}
	}

	return mongodb.NewPersistenceEngine(client, settings.MongoDBDatabase), disconnect, nil
}

func newMemoryEngine(settings Settings) (*memory.PersistenceEngine, error) {
	users, err := settings.MemoryUserList()
	if err != nil {
		return nil, err
	}

	assignments, err := settings.MemoryAssignmentList()
	if err != nil {
		return nil, err
	}

	engine := memory.NewPersistenceEngine()
	for _, user := range users {
		engine.PutUser(user)
	}

	for _, assignment := range assignments {
		engine.Assign(assignment.UserId, assignment.AgentId)
	}

	return engine, nil
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(fmt.Errorf("failed to parse settings from environment: %w", err))
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()

	persistenceEngine, closePersistence, err := newPersistenceEngine(ctx, logger, settings)
	if err != nil {
		logger.Fatal("failed to create persistence engine", zap.Error(err))
	}
	defer closePersistence()

	app := NewApp(logger, settings, persistenceEngine)

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	err = app.run(ctx)
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
}
