// Package autonomous runs the scheduled actor loop: on each tick one
// autonomous persona decides whether to open a fresh topic or join an
// existing discussion, then a discussion run executes with no client
// attached.
package autonomous

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/adhocore/gronx"

	"roundtable/pkg/config"
	"roundtable/pkg/decision"
	"roundtable/pkg/logger"
	"roundtable/pkg/models"
	"roundtable/pkg/novelty"
	"roundtable/pkg/personas"
	"roundtable/pkg/scheduler"
	"roundtable/pkg/store"
	"roundtable/pkg/utils"
)

// candidateLimit bounds how many recent topics are considered per tick.
const candidateLimit = 50

// Runner owns one autonomous actor pass and its cron schedule.
type Runner struct {
	reg   *personas.Registry
	dec   *decision.Service
	gen   *novelty.Generator
	sched *scheduler.Scheduler
	cfg   config.AutonomousConfig

	// newRand is injectable so tests can pin tick outcomes.
	newRand func() *rand.Rand
}

// New builds a runner.
func New(reg *personas.Registry, dec *decision.Service, gen *novelty.Generator, sched *scheduler.Scheduler, cfg config.AutonomousConfig) *Runner {
	return &Runner{
		reg:   reg,
		dec:   dec,
		gen:   gen,
		sched: sched,
		cfg:   cfg,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// SetRandFactory overrides the per-tick random source.
func (r *Runner) SetRandFactory(fn func() *rand.Rand) { r.newRand = fn }

// Start starts the tick scheduler if enabled. Returns a cancel func.
func (r *Runner) Start(ctx context.Context) (context.CancelFunc, error) {
	if !r.cfg.Enabled {
		logger.Info("autonomous_disabled")
		return func() {}, nil
	}
	cronExpr := r.cfg.Cron
	if cronExpr == "" {
		cronExpr = "*/10 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("autonomous_invalid_cron", "cron", r.cfg.Cron)
		return nil, fmt.Errorf("invalid autonomous cron expression: %s", r.cfg.Cron)
	}

	logger.Info("autonomous_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go r.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until
// then, running one pass per tick.
func (r *Runner) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("autonomous_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("autonomous_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("autonomous_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := r.RunOnce(ctx, decision.TriggerAutonomous); err != nil {
				logger.Error("autonomous_tick_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("autonomous_scheduler_stopping")
			return
		}
	}
}

// RunOnce executes one actor pass: decide, then open a system discussion
// on a fresh topic or join an existing one. Cron ticks pass the scheduled
// trigger; the operator endpoint passes the manual one, which consults the
// completion service instead of flipping a coin.
func (r *Runner) RunOnce(ctx context.Context, trigger decision.Trigger) error {
	actors := r.reg.Autonomous()
	if len(actors) == 0 {
		return fmt.Errorf("no autonomous personas in catalog")
	}
	rng := r.newRand()
	actor := actors[rng.Intn(len(actors))]

	topics, err := store.ListTopics(candidateLimit)
	if err != nil {
		return err
	}
	candidates := make([]decision.Candidate, 0, len(topics))
	for _, t := range topics {
		if t.Status == models.StatusDiscussing {
			continue
		}
		n, cerr := store.CountMessages(t.ID)
		if cerr != nil {
			return cerr
		}
		candidates = append(candidates, decision.Candidate{Topic: t, MessageCount: n})
	}

	d := r.dec.Decide(ctx, actor, candidates, trigger, rng)
	logger.Info("autonomous_decision", "actor", actor.ID, "action", string(d.Action), "reason", d.Reason)

	if d.Action == decision.ActionAskNew {
		return r.openTopic(ctx, topics, rng)
	}
	return r.joinTopic(ctx, *d.Target, rng)
}

// openTopic generates a novel topic and runs a system-initiated
// discussion on it.
func (r *Runner) openTopic(ctx context.Context, recent []models.Topic, rng *rand.Rand) error {
	titles := make([]string, 0, len(recent))
	for _, t := range recent {
		titles = append(titles, t.Title)
	}
	draft := r.gen.Generate(ctx, titles, rng)

	now := time.Now().UTC().UnixNano()
	topic := models.Topic{
		ID:          utils.GenTopicID(),
		Title:       draft.Title,
		Description: draft.Description,
		Tags:        draft.Tags,
		CreatedBy:   models.CreatorAgent,
		Status:      models.StatusDiscussing,
		CreatedTS:   now,
		UpdatedTS:   now,
	}
	if err := store.SaveTopic(topic); err != nil {
		return err
	}
	logger.Info("autonomous_topic_opened", "topic", topic.ID, "title", topic.Title)

	ch, err := r.sched.Run(ctx, topic, nil, scheduler.Options{
		TriggeredBy: scheduler.TriggerSystem,
		Rand:        rng,
	})
	if err != nil {
		return err
	}
	return drain(ch)
}

// joinTopic runs an autonomous discussion on an existing topic.
func (r *Runner) joinTopic(ctx context.Context, topic models.Topic, rng *rand.Rand) error {
	history, err := store.ListMessages(topic.ID)
	if err != nil {
		return err
	}
	topic.Status = models.StatusDiscussing
	topic.UpdatedTS = time.Now().UTC().UnixNano()
	if err := store.SaveTopic(topic); err != nil {
		return err
	}
	ch, err := r.sched.Run(ctx, topic, history, scheduler.Options{
		TriggeredBy: scheduler.TriggerAutonomous,
		Rand:        rng,
	})
	if err != nil {
		return err
	}
	return drain(ch)
}

// drain consumes the event stream with no client attached, surfacing a
// terminal error event if one arrives.
func drain(ch <-chan models.TurnEvent) error {
	var last models.TurnEvent
	for ev := range ch {
		last = ev
	}
	if last.Name == models.EventError {
		return fmt.Errorf("discussion failed: %s", last.Error)
	}
	return nil
}
