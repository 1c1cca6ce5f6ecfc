package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sereno-app/sereno/internal/activity"
	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/auth"
	"github.com/sereno-app/sereno/internal/backoff"
	"github.com/sereno-app/sereno/internal/bus"
	"github.com/sereno-app/sereno/internal/chat"
	"github.com/sereno-app/sereno/internal/cleanup"
	"github.com/sereno-app/sereno/internal/config"
	"github.com/sereno-app/sereno/internal/conn"
	"github.com/sereno-app/sereno/internal/lock"
	"github.com/sereno-app/sereno/internal/logging"
	"github.com/sereno-app/sereno/internal/metrics"
	"github.com/sereno-app/sereno/internal/session"
	"github.com/sereno-app/sereno/internal/store"
	"github.com/sereno-app/sereno/internal/transport"
	"github.com/sereno-app/sereno/internal/transport/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	// Config is the resolved configuration; nil loads it from the profile
	// base directory and the environment.
	Config *config.Config
	// Room is opened once the daemon has started; empty waits for a client.
	Room string

	SocketPath string           // optional override for testing; empty = use default
	Dialer     transport.Dialer // optional override for testing; nil = WebSocket
	LogPath    string           // optional override; empty = profile log file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideCredentials,
			provideBus,
			provideRegistry,
			provideMetrics,
			provideDialer,
			provideLock,
			provideStore,
			provideSession,
			provideRecorder,
			provideScheduler,
			provideService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		if err := p.Config.Validate(); err != nil {
			return nil, err
		}
		return p.Config, nil
	}
	return config.Resolve(context.Background(), session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	path := p.LogPath
	if path == "" {
		path = session.LogPath(p.Profile)
	}
	return logging.New(path, p.Profile, cfg.Log.Level)
}

func provideCredentials(cfg *config.Config, logger *zap.Logger) (auth.Credentials, error) {
	creds, err := auth.Load(cfg.Auth)
	if errors.Is(err, auth.ErrNoToken) {
		logger.Warn("no auth token configured, connecting anonymously")
		return auth.Credentials{UserID: cfg.Auth.UserID, UserName: cfg.Auth.UserName}, nil
	}
	if err != nil {
		return auth.Credentials{}, err
	}
	if creds.Expired(time.Now()) {
		logger.Warn("auth token has expired", zap.Time("expires_at", creds.ExpiresAt))
	}
	logger.Info("credentials loaded", zap.String("user_id", creds.UserID))
	return creds, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry, b *bus.Bus) *metrics.Metrics {
	m := metrics.New(reg)
	metrics.RegisterBusDropped(reg, b.Dropped)
	return m
}

func provideDialer(p Params, cfg *config.Config) transport.Dialer {
	if p.Dialer != nil {
		return p.Dialer
	}
	return &ws.Dialer{Origin: cfg.Server.Origin, ReadLimit: cfg.Connection.ReadLimit}
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSession(cfg *config.Config, creds auth.Credentials, b *bus.Bus, dialer transport.Dialer, m *metrics.Metrics, logger *zap.Logger) *chat.Session {
	return chat.New(chat.Deps{
		Bus:    b,
		Dialer: dialer,
		Endpoint: func(roomID string) (string, error) {
			return transport.Endpoint(cfg.Server.URL, roomID, creds.Token)
		},
		Policy:   backoff.FromConfig(cfg.Reconnect),
		Metrics:  m,
		Logger:   logger.Named("chat"),
		SelfID:   creds.UserID,
		SelfName: creds.UserName,
	}, chat.Options{
		Conn: conn.Options{
			ConnectTimeout:    cfg.Connection.ConnectTimeout,
			HeartbeatInterval: cfg.Connection.HeartbeatInterval,
			HeartbeatGrace:    cfg.Connection.HeartbeatGrace,
			WriteTimeout:      cfg.Connection.WriteTimeout,
		},
		AckTimeout:   cfg.Chat.AckTimeout,
		DedupeWindow: cfg.Chat.DedupeWindow,
	})
}

func provideRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *activity.Recorder {
	return activity.NewRecorder(db, b, logger.Named("activity"))
}

// provideScheduler returns nil when cleanup is disabled.
func provideScheduler(cfg *config.Config, db *store.DB, logger *zap.Logger) (*cleanup.Scheduler, error) {
	if cfg.Cleanup.Schedule == "" || cfg.Cleanup.Retention == 0 {
		logger.Info("room cleanup disabled")
		return nil, nil
	}
	return cleanup.New(db, cfg.Cleanup.Schedule, cfg.Cleanup.Retention, logger.Named("cleanup"))
}

func provideService(p Params, creds auth.Credentials, s *chat.Session, db *store.DB, logger *zap.Logger) *api.Service {
	return api.NewService(p.Profile, creds.UserID, s, db, logger.Named("api"))
}

type lifecycleDeps struct {
	fx.In

	Params    Params
	Server    *Server
	Service   *api.Service
	Metrics   *MetricsServer
	Lock      *lock.Lock
	DB        *store.DB
	Session   *chat.Session
	Recorder  *activity.Recorder
	Scheduler *cleanup.Scheduler
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Record before anything can open a room.
			d.Recorder.Start(context.Background())

			if d.Scheduler != nil {
				if err := d.Scheduler.Start(); err != nil {
					return err
				}
			}

			if d.Metrics != nil {
				if err := d.Metrics.Start(); err != nil {
					return err
				}
			}

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.Params.Room != "" {
				if err := d.Session.Open(d.Params.Room); err != nil {
					logger.Error("auto-open failed", zap.String("room", d.Params.Room), zap.Error(err))
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Service.Shutdown()
			d.Server.Stop(ctx)
			d.Session.Close()
			if d.Scheduler != nil {
				if err := d.Scheduler.Stop(ctx); err != nil {
					logger.Warn("cleanup did not stop in time", zap.Error(err))
				}
			}
			d.Recorder.Stop()
			if d.Metrics != nil {
				d.Metrics.Stop(ctx)
			}
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
