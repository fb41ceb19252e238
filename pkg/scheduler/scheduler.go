// Package scheduler decides, turn by turn, which persona speaks, whom
// they address, streams partial output to the caller, and persists each
// turn exactly once.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"

	"roundtable/pkg/completion"
	"roundtable/pkg/config"
	"roundtable/pkg/ledger"
	"roundtable/pkg/logger"
	"roundtable/pkg/models"
	"roundtable/pkg/personas"
	"roundtable/pkg/store"
	"roundtable/pkg/telemetry"
	"roundtable/pkg/utils"
)

// Reply-target policy. Names, not magic literals, so tests can reason
// about the branch structure.
const (
	// probReplyTopic: the persona addresses the topic itself (no target).
	probReplyTopic = 0.4
	// probReplyLatest: otherwise, reply to the most recent message ...
	probReplyLatest = 0.7
	// probReplyEarlier: ... or to a uniformly-random earlier one.
	probReplyEarlier = 0.3
)

// Turn-set sizes per trigger kind.
const (
	turnsHumanReply = 1
	turnsHumanOpen  = 2
	turnsSystemOpen = 4
	turnsAutonomous = 2
)

// TriggerKind identifies what started a discussion run.
type TriggerKind string

const (
	TriggerHuman      TriggerKind = "human"
	TriggerAutonomous TriggerKind = "autonomous"
	TriggerSystem     TriggerKind = "system"
)

// ErrValidation rejects a run before any turn happens.
var ErrValidation = errors.New("invalid discussion input")

// Options shapes one discussion run.
type Options struct {
	TriggeredBy TriggerKind
	// UserMessage, when set, is the human's new message: it is persisted
	// first and the opening generated turn always replies to it.
	UserMessage *models.Message
	// ExplicitReplyTarget directs the run at one prior message.
	ExplicitReplyTarget string
	// InvitedPersona pins the turn set to a single persona.
	InvitedPersona string
	// Rand drives every probabilistic branch; injected so tests can pin
	// outcomes. Required.
	Rand *rand.Rand
}

// Scheduler orchestrates discussion runs. One invocation is strictly
// sequential (each turn's prompt depends on prior committed text); runs on
// different topics proceed fully concurrently.
type Scheduler struct {
	reg *personas.Registry
	svc completion.Service
	led *ledger.Ledger
	cfg config.DiscussionConfig

	// sleep is injectable pacing; nil means time.Sleep.
	sleep func(time.Duration)
}

// New builds a scheduler.
func New(reg *personas.Registry, svc completion.Service, led *ledger.Ledger, cfg config.DiscussionConfig) *Scheduler {
	return &Scheduler{reg: reg, svc: svc, led: led, cfg: cfg, sleep: time.Sleep}
}

// SetSleep overrides the pacing sleep; tests pass a no-op.
func (s *Scheduler) SetSleep(fn func(time.Duration)) { s.sleep = fn }

// Run validates inputs and starts a discussion run. The returned channel
// carries the turn-by-turn event stream and is closed when the run ends.
// If ctx is canceled mid-run the scheduler stops emitting but finishes
// persisting the turn already in flight.
func (s *Scheduler) Run(ctx context.Context, topic models.Topic, history []models.Message, opts Options) (<-chan models.TurnEvent, error) {
	if strings.TrimSpace(topic.Title) == "" {
		return nil, errors.Wrap(ErrValidation, "topic title is empty")
	}
	if opts.Rand == nil {
		return nil, errors.Wrap(ErrValidation, "random source is required")
	}
	if opts.InvitedPersona != "" {
		if _, ok := s.reg.Get(opts.InvitedPersona); !ok {
			return nil, errors.Wrapf(ErrValidation, "unknown persona %s", opts.InvitedPersona)
		}
	}
	ch := make(chan models.TurnEvent, 8)
	go s.run(ctx, topic, history, opts, ch)
	return ch, nil
}

func (s *Scheduler) run(ctx context.Context, topic models.Topic, history []models.Message, opts Options, ch chan<- models.TurnEvent) {
	defer close(ch)

	emit := func(ev models.TurnEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	humanTurn := false
	if opts.UserMessage != nil {
		m := *opts.UserMessage
		if m.ID == "" {
			m.ID = utils.GenID()
		}
		if m.TS == 0 {
			m.TS = time.Now().UTC().UnixNano()
		}
		m.Topic = topic.ID
		m.Kind = models.AuthorHuman
		if err := store.SaveMessage(m); err != nil {
			logger.Error("user_message_persist_failed", "topic", topic.ID, "error", err)
			emit(models.TurnEvent{Name: models.EventError, Error: "persistence failed"})
			return
		}
		history = append(history, m)
		humanTurn = true
		opts.UserMessage = &m
		telemetry.MessagesPersisted.WithLabelValues(string(models.AuthorHuman)).Inc()
	}

	actors := s.selectActors(topic, history, opts)
	logger.Info("discussion_started", "topic", topic.ID, "trigger", string(opts.TriggeredBy), "turns", len(actors))

	var produced []models.Message
	for i, p := range actors {
		if i > 0 {
			s.pace(opts.Rand)
			if ctx.Err() != nil {
				// client gone between turns: nothing half-persisted, stop here
				logger.Info("discussion_detached", "topic", topic.ID, "turns_run", i)
				break
			}
		}
		turnStart := time.Now()
		emit(models.TurnEvent{Name: models.EventTyping, PersonaID: p.ID, PersonaName: p.Name})

		target := s.resolveTarget(i, history, opts)
		content, likes := s.generate(ctx, p, topic, history, target, emit)
		if strings.TrimSpace(content) == "" {
			content = fallbackContent(p, topic)
			telemetry.GenerationFallbacks.Inc()
		}

		s.reconcileLikes(p, history, likes, emit)

		m := models.Message{
			ID:         utils.GenID(),
			Topic:      topic.ID,
			Author:     p.ID,
			Kind:       models.AuthorPersona,
			AuthorName: p.Name,
			Content:    content,
			ReplyTo:    target,
			TS:         time.Now().UTC().UnixNano(),
		}
		if err := store.SaveMessage(m); err != nil {
			// no rollback: turns already persisted remain valid, resuming is
			// idempotent on message id
			logger.Error("turn_persist_failed", "topic", topic.ID, "msg_id", m.ID, "error", err)
			emit(models.TurnEvent{Name: models.EventError, Error: "persistence failed"})
			return
		}
		history = append(history, m)
		produced = append(produced, m)
		telemetry.TurnsRun.WithLabelValues(string(opts.TriggeredBy)).Inc()
		telemetry.MessagesPersisted.WithLabelValues(string(models.AuthorPersona)).Inc()
		telemetry.TurnDuration.Observe(time.Since(turnStart).Seconds())
		emit(models.TurnEvent{Name: models.EventMessage, PersonaID: p.ID, PersonaName: p.Name, Message: &m})
	}

	emit(models.TurnEvent{Name: models.EventSynthesizing})

	status := models.StatusWaiting
	if humanTurn {
		status = models.StatusActive
	}
	// engagement write-behind may have updated the stored record while the
	// run was in flight; re-read and mutate only the run-owned fields
	if fresh, ferr := store.GetTopic(topic.ID); ferr == nil {
		topic = fresh
	}
	topic.Status = status
	topic.TurnCount += len(produced)
	topic.UpdatedTS = time.Now().UTC().UnixNano()
	if err := store.SaveTopic(topic); err != nil {
		logger.Error("topic_update_failed", "topic", topic.ID, "error", err)
		emit(models.TurnEvent{Name: models.EventError, Error: "persistence failed"})
		return
	}

	msgs := history
	if opts.UserMessage != nil || len(produced) > 0 {
		msgs = append([]models.Message(nil), history...)
	}
	emit(models.TurnEvent{Name: models.EventDone, Result: &models.TurnResult{
		TopicID:   topic.ID,
		Status:    status,
		TurnCount: topic.TurnCount,
		TurnsRun:  len(produced),
		Messages:  msgs,
	}})
	logger.Info("discussion_done", "topic", topic.ID, "status", string(status), "turns_run", len(produced))
}

// selectActors builds the ordered turn set per the trigger shape.
func (s *Scheduler) selectActors(topic models.Topic, history []models.Message, opts Options) []models.Persona {
	if opts.InvitedPersona != "" {
		p, _ := s.reg.Get(opts.InvitedPersona)
		return []models.Persona{p}
	}
	if opts.TriggeredBy == TriggerHuman && opts.ExplicitReplyTarget != "" {
		if author, ok := personaOf(history, opts.ExplicitReplyTarget); ok {
			if p, found := s.reg.Get(author); found {
				return []models.Persona{p}
			}
		}
	}
	n := turnsAutonomous
	switch opts.TriggeredBy {
	case TriggerHuman:
		if repliesToPersona(history, opts.UserMessage) {
			n = turnsHumanReply
		} else {
			n = turnsHumanOpen
		}
	case TriggerSystem:
		n = turnsSystemOpen
	}
	if s.cfg.MaxRounds > 0 && topic.TurnCount >= s.cfg.MaxRounds-1 && n > 1 {
		// final configured round: wind the thread down with a single turn
		n = 1
	}
	exclude := map[string]bool{}
	for _, m := range history {
		if m.Kind == models.AuthorPersona {
			exclude[m.Author] = true
		}
	}
	return s.reg.SelectForTopic(topic.Tags, n, exclude, opts.Rand)
}

// resolveTarget picks the reply target for turn i. The opening turn of a
// human-triggered exchange always answers the human's newest message; an
// invited persona with no supplied target addresses the topic itself;
// otherwise the randomized policy applies.
func (s *Scheduler) resolveTarget(i int, history []models.Message, opts Options) string {
	if i == 0 {
		if opts.UserMessage != nil {
			return opts.UserMessage.ID
		}
		if opts.ExplicitReplyTarget != "" {
			return opts.ExplicitReplyTarget
		}
	}
	if opts.InvitedPersona != "" {
		return ""
	}
	if len(history) == 0 {
		return ""
	}
	rng := opts.Rand
	if rng.Float64() < probReplyTopic {
		return ""
	}
	if rng.Float64() < probReplyLatest || len(history) == 1 {
		return history[len(history)-1].ID
	}
	earlier := history[:len(history)-1]
	return earlier[rng.Intn(len(earlier))].ID
}

// generate drives the completion stream for one turn, forwarding deltas as
// chunk events. Generation failures never fail the turn: whatever text
// arrived is kept and the caller substitutes a fallback when it is empty.
func (s *Scheduler) generate(ctx context.Context, p models.Persona, topic models.Topic, history []models.Message, target string, emit func(models.TurnEvent) bool) (string, []string) {
	req := s.buildRequest(p, topic, history, target)
	ts, err := s.svc.Stream(ctx, req)
	if err != nil {
		logger.Warn("generation_stream_open_failed", "persona", p.ID, "topic", topic.ID, "error", err)
		return "", nil
	}
	defer ts.Close()
	var b strings.Builder
	for {
		delta, rerr := ts.Recv()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			logger.Warn("generation_stream_failed", "persona", p.ID, "topic", topic.ID, "error", rerr)
			break
		}
		b.WriteString(delta)
		emit(models.TurnEvent{Name: models.EventChunk, PersonaID: p.ID, PersonaName: p.Name, Delta: delta})
	}
	return completion.ExtractLikes(b.String())
}

// buildRequest assembles the persona/system prompt plus the trailing
// context window as role-tagged messages.
func (s *Scheduler) buildRequest(p models.Persona, topic models.Topic, history []models.Message, target string) completion.Request {
	var sys strings.Builder
	sys.WriteString(p.Prompt)
	sys.WriteString("\nYou are ")
	sys.WriteString(p.Name)
	sys.WriteString(" (")
	sys.WriteString(p.Title)
	sys.WriteString(") in a public discussion. Topic: ")
	sys.WriteString(topic.Title)
	if topic.Description != "" {
		sys.WriteString("\n")
		sys.WriteString(topic.Description)
	}
	sys.WriteString("\nWrite one short reply in your own voice. If any earlier message deserves a like, finish with a separate last line: {\"likes\":[\"<author id>\"]}.")

	window := history
	if s.cfg.ContextWindow > 0 && len(window) > s.cfg.ContextWindow {
		window = window[len(window)-s.cfg.ContextWindow:]
	}
	msgs := make([]completion.ChatMessage, 0, len(window)+1)
	for _, m := range window {
		role := completion.RoleUser
		if m.Author == p.ID {
			role = completion.RoleAssistant
		}
		msgs = append(msgs, completion.ChatMessage{
			Role:    role,
			Content: fmt.Sprintf("[%s#%s] %s", m.AuthorName, m.Author, m.Content),
		})
	}
	if target != "" {
		if tm, ok := find(history, target); ok {
			msgs = append(msgs, completion.ChatMessage{
				Role:    completion.RoleUser,
				Content: fmt.Sprintf("Reply directly to %s: %q", tm.AuthorName, tm.Content),
			})
		}
	}
	return completion.Request{System: sys.String(), Messages: msgs}
}

// reconcileLikes applies persona-issued likes: each entry resolves to an
// earlier participant by actor id, falling back to exact display-name
// match, and targets that participant's most recent message. Already-liked
// messages are skipped; applied edges go out as one likes event.
func (s *Scheduler) reconcileLikes(p models.Persona, history []models.Message, likes []string, emit func(models.TurnEvent) bool) {
	if len(likes) == 0 {
		return
	}
	var edges []models.LikeEdge
	for _, entry := range likes {
		m, ok := latestByAuthor(history, entry)
		if !ok || m.Author == p.ID {
			continue
		}
		upvotes, applied := s.led.RecordLike(m.ID, p.ID)
		if !applied {
			continue
		}
		edges = append(edges, models.LikeEdge{MessageID: m.ID, ActorID: p.ID, Upvotes: upvotes})
	}
	if len(edges) > 0 {
		emit(models.TurnEvent{Name: models.EventLikes, PersonaID: p.ID, PersonaName: p.Name, Liked: edges})
	}
}

// pace sleeps the configured inter-turn delay. Kept for observable
// behavior parity: clients expect turns to trickle, not burst.
func (s *Scheduler) pace(rng *rand.Rand) {
	min, max := s.cfg.PaceMinMS, s.cfg.PaceMaxMS
	if min <= 0 || max < min {
		return
	}
	d := time.Duration(min+rng.Intn(max-min+1)) * time.Millisecond
	s.sleep(d)
}

func fallbackContent(p models.Persona, topic models.Topic) string {
	return fmt.Sprintf("(%s) I need to sit with %q a little longer — short answer: it depends on constraints nobody has named yet.", p.Name, topic.Title)
}

func personaOf(history []models.Message, msgID string) (string, bool) {
	if m, ok := find(history, msgID); ok && m.Kind == models.AuthorPersona {
		return m.Author, true
	}
	return "", false
}

func repliesToPersona(history []models.Message, user *models.Message) bool {
	if user == nil || user.ReplyTo == "" {
		return false
	}
	_, ok := personaOf(history, user.ReplyTo)
	return ok
}

func find(history []models.Message, id string) (models.Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ID == id {
			return history[i], true
		}
	}
	return models.Message{}, false
}

// latestByAuthor resolves a like entry (actor id, or display name as a
// compatibility shim) to that author's most recent message.
func latestByAuthor(history []models.Message, entry string) (models.Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Author == entry || history[i].AuthorName == entry {
			return history[i], true
		}
	}
	return models.Message{}, false
}
