package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chordstream.io/internal/audit"
	"chordstream.io/internal/auth"
	"chordstream.io/internal/config"
	"chordstream.io/internal/httpapi"
	"chordstream.io/internal/obs"
	"chordstream.io/internal/security"
	"chordstream.io/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.MustLoad(*configPath)

	// Sinks: JSON-line audit log always; Postgres additionally when a DSN
	// is configured.
	var (
		store *pg.Store
		sink  security.Sink = audit.LogSink{}
	)
	if cfg.DB.DSN != "" {
		var err error
		store, err = pg.Open(cfg.DB.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("ensure schema: %v", err)
		}
		cancel()
		sink = teeSink{audit.LogSink{}, store}
	}

	tracker := security.NewTracker(
		security.WithWindow(cfg.Security.LoginWindow),
		security.WithMaxAttempts(cfg.Security.MaxAttempts),
		security.WithBlockDuration(cfg.Security.BlockDuration),
	)
	recorder := security.NewRecorder(sink)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithAccessTTL(cfg.Auth.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	var users auth.UserStore
	if store != nil {
		users = store
	} else {
		log.Println("no CHORDSTREAM_PG_DSN set, user store unavailable until configured")
		users = unavailableUserStore{}
	}

	svc, err := auth.NewService(users, tokens, tracker, recorder)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	probe := httpapi.ReadyProbe{}
	if store != nil {
		probe.DB = store.DB()
	}
	api := httpapi.New(svc, users, probe, httpapi.Config{
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSecond,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		Version:            version,
	})

	// Background sweep: expired attempt windows and redundant revocation
	// entries, under the components' own locks.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Security.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tracker.Sweep()
				tokens.Sweep()
			case <-sweepDone:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting chordstream-auth %s on %s (env %s)", version, srv.Addr, cfg.Env)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}

// teeSink fans an event out to every sink; the recorder already treats sink
// failures as non-fatal, so the first error is enough to report.
type teeSink []security.Sink

func (t teeSink) Record(ctx context.Context, event security.Event) error {
	var firstErr error
	for _, s := range t {
		if err := s.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// unavailableUserStore keeps the service bootable without a database; every
// lookup reports not-found.
type unavailableUserStore struct{}

func (unavailableUserStore) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	return nil, auth.ErrNotFound
}

func (unavailableUserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return nil, auth.ErrNotFound
}

func (unavailableUserStore) Create(ctx context.Context, u *auth.User) error {
	return auth.ErrNotFound
}

func (unavailableUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return auth.ErrNotFound
}

func (unavailableUserStore) UpdateStatus(ctx context.Context, userID, status string) error {
	return auth.ErrNotFound
}
