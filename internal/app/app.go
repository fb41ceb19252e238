package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/joho/godotenv"

	"roundtable/internal/autonomous"
	"roundtable/pkg/api"
	"roundtable/pkg/completion"
	"roundtable/pkg/config"
	"roundtable/pkg/decision"
	"roundtable/pkg/ledger"
	"roundtable/pkg/logger"
	"roundtable/pkg/novelty"
	"roundtable/pkg/personas"
	"roundtable/pkg/scheduler"
	"roundtable/pkg/store"
	"roundtable/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	led    *ledger.Ledger
	server *api.Server
	runner *autonomous.Runner

	srv *http.Server
}

// New initializes resources that do not require a running context: store,
// persona registry, ledger hydration, engine wiring. It does not start the
// HTTP server or the autonomous loop; call Run to start those and block
// until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	validation.SetLimits(validation.Limits{
		MaxTitleLen:   eff.Config.Validation.MaxTitleLen,
		MaxContentLen: eff.Config.Validation.MaxContentLen,
		MaxTags:       eff.Config.Validation.MaxTags,
	})

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	reg, err := personas.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load persona catalog: %w", err)
	}

	svc := buildCompletion(eff.Config.Completion)

	led := ledger.New(persistEngagement)
	if err := hydrateLedger(led); err != nil {
		return nil, fmt.Errorf("failed to hydrate engagement ledger: %w", err)
	}

	sched := scheduler.New(reg, svc, led, eff.Config.Discussion)
	dec := decision.New(svc)
	gen := novelty.NewGenerator(svc)
	runner := autonomous.New(reg, dec, gen, sched, eff.Config.Autonomous)

	server := &api.Server{
		Reg:   reg,
		Sched: sched,
		Led:   led,
		// the operator endpoint is a manual trigger, not a scheduled tick
		Tick: func(ctx context.Context) error {
			return runner.RunOnce(ctx, decision.TriggerManual)
		},
	}

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		led:       led,
		server:    server,
		runner:    runner,
	}, nil
}

// Run starts the autonomous loop and the HTTP server, and blocks until ctx
// is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	stopAutonomous, err := a.runner.Start(ctx)
	if err != nil {
		return err
	}
	defer stopAutonomous()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.srv != nil {
		_ = a.srv.Shutdown(context.Background())
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}

// buildCompletion constructs the outbound completion client, degrading to
// the unavailable stub when no API key is present so the engine still runs
// on its deterministic fallbacks.
func buildCompletion(cfg config.CompletionConfig) completion.Service {
	svc, err := completion.NewOpenAI(cfg)
	if err != nil {
		logger.Warn("completion_unconfigured", "error", err)
		return completion.Unavailable{}
	}
	return svc
}

// persistEngagement is the ledger write-behind: it copies the installed
// snapshot onto the stored topic or message. Target ids carry their kind
// prefix, so routing is a prefix check.
func persistEngagement(targetID string, snap ledger.Snapshot) error {
	if strings.HasPrefix(targetID, "topic-") {
		t, err := store.GetTopic(targetID)
		if err != nil {
			return err
		}
		t.Upvotes = snap.Upvotes
		t.Downvotes = snap.Downvotes
		t.LikedBy = snap.LikedBy
		t.DislikedBy = snap.DislikedBy
		return store.SaveTopic(t)
	}
	m, err := store.GetMessage(targetID)
	if err != nil {
		return err
	}
	m.Upvotes = snap.Upvotes
	m.Downvotes = snap.Downvotes
	m.LikedBy = snap.LikedBy
	m.DislikedBy = snap.DislikedBy
	return store.SaveMessage(m)
}

// hydrateLedger seeds the in-memory ledger from stored engagement sets so
// restart cannot resurrect stale counters.
func hydrateLedger(led *ledger.Ledger) error {
	topics, err := store.ListTopics(0)
	if err != nil {
		return err
	}
	for _, t := range topics {
		led.Hydrate(t.ID, t.LikedBy, t.DislikedBy)
		msgs, merr := store.ListMessages(t.ID)
		if merr != nil {
			return merr
		}
		for _, m := range msgs {
			led.Hydrate(m.ID, m.LikedBy, m.DislikedBy)
		}
	}
	return nil
}

// validateConfig rejects configs that cannot serve before any resource is
// opened.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("no config loaded")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if _, _, err := net.SplitHostPort(eff.Addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", eff.Addr, err)
	}
	d := eff.Config.Discussion
	if d.PaceMaxMS < d.PaceMinMS {
		return fmt.Errorf("discussion pace_max_ms must be >= pace_min_ms")
	}
	tls := eff.Config.Server.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("tls cert_file and key_file must be set together")
	}
	return nil
}
