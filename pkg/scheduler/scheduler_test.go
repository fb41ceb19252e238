package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"roundtable/pkg/completion"
	"roundtable/pkg/config"
	"roundtable/pkg/ledger"
	"roundtable/pkg/logger"
	"roundtable/pkg/models"
	"roundtable/pkg/personas"
	"roundtable/pkg/store"
)

const testCatalog = `
personas:
  - id: p-a
    name: Ada
    title: Tech Lead
    prompt: "You are blunt."
    affinities: [ai, engineering]
    autonomous: true
  - id: p-b
    name: Ben
    title: Economist
    prompt: "You think in trade-offs."
    affinities: [economics]
  - id: p-c
    name: Cyn
    title: Designer
    prompt: "You care about people."
    affinities: [design]
`

func newScheduler(t *testing.T, svc completion.Service) (*Scheduler, *ledger.Ledger) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg, err := personas.LoadBytes([]byte(testCatalog))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	led := ledger.New(nil)
	cfg := config.DiscussionConfig{ContextWindow: 6, MaxRounds: 12}
	s := New(reg, svc, led, cfg)
	s.SetSleep(func(time.Duration) {})
	return s, led
}

func saveTopic(t *testing.T, topic models.Topic) models.Topic {
	t.Helper()
	if err := store.SaveTopic(topic); err != nil {
		t.Fatalf("SaveTopic: %v", err)
	}
	return topic
}

func collect(t *testing.T, ch <-chan models.TurnEvent) []models.TurnEvent {
	t.Helper()
	var out []models.TurnEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("event stream did not finish")
		}
	}
}

func byName(events []models.TurnEvent, name models.EventName) []models.TurnEvent {
	var out []models.TurnEvent
	for _, ev := range events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunRejectsInvalidInput(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{})
	rng := rand.New(rand.NewSource(1))

	if _, err := s.Run(context.Background(), models.Topic{ID: "topic-1"}, nil, Options{Rand: rng}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
	top := models.Topic{ID: "topic-1", Title: "t"}
	if _, err := s.Run(context.Background(), top, nil, Options{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing rand, got %v", err)
	}
	if _, err := s.Run(context.Background(), top, nil, Options{Rand: rng, InvitedPersona: "p-nope"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown persona, got %v", err)
	}
}

func TestInvitedPersonaRunsExactlyOneTurn(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"Short and to the point."}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Does pairing scale?", Tags: []string{"engineering"}})

	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy:    TriggerHuman,
		InvitedPersona: "p-b",
		Rand:           rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)

	msgs := byName(events, models.EventMessage)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message event, got %d", len(msgs))
	}
	if msgs[0].Message.Author != "p-b" {
		t.Fatalf("expected invited persona to speak, got %s", msgs[0].Message.Author)
	}
	done := byName(events, models.EventDone)
	if len(done) != 1 || done[0].Result.TurnsRun != 1 {
		t.Fatalf("expected done with 1 turn, got %+v", done)
	}

	stored, err := store.ListMessages("topic-1")
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected 1 persisted message, got %d err=%v", len(stored), err)
	}
}

func TestInvitedPersonaWithHistoryAddressesTopic(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"Joining in."}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Does pairing scale?", Tags: []string{"engineering"}})

	prior := models.Message{ID: "msg-prior", Topic: "topic-1", Author: "p-a", Kind: models.AuthorPersona, AuthorName: "Ada", Content: "Opening take.", TS: 1}
	if err := store.SaveMessage(prior); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	// an invited run with no supplied target addresses the topic itself,
	// regardless of existing history or where the dice land
	for seed := int64(1); seed <= 8; seed++ {
		ch, err := s.Run(context.Background(), top, []models.Message{prior}, Options{
			TriggeredBy:    TriggerHuman,
			InvitedPersona: "p-b",
			Rand:           rand.New(rand.NewSource(seed)),
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		msgs := byName(collect(t, ch), models.EventMessage)
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message event, got %d", len(msgs))
		}
		if got := msgs[0].Message.ReplyTo; got != "" {
			t.Fatalf("invited turn must not pick a reply target, got %q (seed=%d)", got, seed)
		}
	}
}

func TestHumanReplyToPersonaGetsSingleAnswer(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"Depends on the loss function."}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Will AI eat entry-level work?", Tags: []string{"ai"}})

	prior := models.Message{ID: "msg-prior", Topic: "topic-1", Author: "p-a", Kind: models.AuthorPersona, AuthorName: "Ada", Content: "Opening take.", TS: 1}
	if err := store.SaveMessage(prior); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	user := models.Message{Author: "acct-7", AuthorName: "Sam", Content: "But what about juniors?", ReplyTo: "msg-prior"}
	ch, err := s.Run(context.Background(), top, []models.Message{prior}, Options{
		TriggeredBy: TriggerHuman,
		UserMessage: &user,
		Rand:        rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)

	msgs := byName(events, models.EventMessage)
	if len(msgs) != 1 {
		t.Fatalf("expected single reply turn, got %d", len(msgs))
	}
	// opening turn answers the human's new message
	reply := msgs[0].Message
	if reply.ReplyTo == "" || reply.ReplyTo == "msg-prior" {
		t.Fatalf("expected reply to the user's message, got %q", reply.ReplyTo)
	}
	if reply.Author == "p-a" {
		t.Fatal("persona that already spoke should not be re-selected")
	}

	done := byName(events, models.EventDone)
	if len(done) != 1 || done[0].Result.Status != models.StatusActive {
		t.Fatalf("human-touched run must end active, got %+v", done)
	}

	stored, _ := store.ListMessages("topic-1")
	// prior + user message + one persona turn
	if len(stored) != 3 {
		t.Fatalf("expected 3 persisted messages, got %d", len(stored))
	}
}

func TestHumanOpenRunsTwoTurns(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"First answer.", "Second answer."}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Is a CS degree still worth it?", Tags: []string{"education"}})

	user := models.Message{Author: "acct-1", AuthorName: "Kim", Content: "Curious what experts think."}
	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy: TriggerHuman,
		UserMessage: &user,
		Rand:        rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)
	if got := len(byName(events, models.EventMessage)); got != 2 {
		t.Fatalf("expected 2 turns for a fresh human question, got %d", got)
	}
}

func TestSystemOpenRunsFourTurns(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"a", "b", "c", "d"}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Remote or office?", Tags: []string{"careers"}})

	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy: TriggerSystem,
		Rand:        rand.New(rand.NewSource(5)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)
	msgs := byName(events, models.EventMessage)
	// catalog has 3 personas; system open asks for 4 and falls back to the
	// full pool, so at least 3 distinct turns run
	if len(msgs) < 3 {
		t.Fatalf("expected at least 3 turns, got %d", len(msgs))
	}
	done := byName(events, models.EventDone)
	if len(done) != 1 || done[0].Result.Status != models.StatusWaiting {
		t.Fatalf("system run must end waiting, got %+v", done)
	}
}

func TestEmptyStreamFallsBackToCannedContent(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Err: errors.New("upstream down")})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Does tech debt matter?", Tags: []string{"engineering"}})

	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy:    TriggerHuman,
		InvitedPersona: "p-c",
		Rand:           rand.New(rand.NewSource(9)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)
	msgs := byName(events, models.EventMessage)
	if len(msgs) != 1 {
		t.Fatalf("generation failure must not skip the turn, got %d messages", len(msgs))
	}
	if strings.TrimSpace(msgs[0].Message.Content) == "" {
		t.Fatal("fallback content must be non-empty")
	}
	if len(byName(events, models.EventError)) != 0 {
		t.Fatal("generation failure is not a stream error")
	}
}

func TestLikesLineBecomesLikesEventAndLedgerUpdate(t *testing.T) {
	reply := "Strong agree with Ada here.\n{\"likes\":[\"p-a\"]}"
	s, led := newScheduler(t, &completion.Scripted{Replies: []string{reply}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Monolith first?", Tags: []string{"engineering"}})

	prior := models.Message{ID: "msg-ada", Topic: "topic-1", Author: "p-a", Kind: models.AuthorPersona, AuthorName: "Ada", Content: "Ship the monolith.", TS: 1}
	if err := store.SaveMessage(prior); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	ch, err := s.Run(context.Background(), top, []models.Message{prior}, Options{
		TriggeredBy:    TriggerHuman,
		InvitedPersona: "p-b",
		Rand:           rand.New(rand.NewSource(11)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)

	likes := byName(events, models.EventLikes)
	if len(likes) != 1 || len(likes[0].Liked) != 1 {
		t.Fatalf("expected one likes event with one edge, got %+v", likes)
	}
	edge := likes[0].Liked[0]
	if edge.MessageID != "msg-ada" || edge.ActorID != "p-b" || edge.Upvotes != 1 {
		t.Fatalf("unexpected like edge: %+v", edge)
	}
	if snap := led.State("msg-ada"); snap.Upvotes != 1 {
		t.Fatalf("ledger upvotes = %d", snap.Upvotes)
	}

	// likes line is stripped from the persisted content
	msgs := byName(events, models.EventMessage)
	if len(msgs) != 1 || strings.Contains(msgs[0].Message.Content, "likes") {
		t.Fatalf("likes line leaked into content: %+v", msgs)
	}
}

func TestChunkEventsPrecedeMessage(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"A reply long enough to span several chunks of the scripted stream."}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Chunks?", Tags: []string{"ai"}})

	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy:    TriggerHuman,
		InvitedPersona: "p-a",
		Rand:           rand.New(rand.NewSource(2)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collect(t, ch)

	if len(byName(events, models.EventChunk)) < 2 {
		t.Fatal("expected multiple chunk events")
	}
	var sawChunk bool
	for _, ev := range events {
		switch ev.Name {
		case models.EventTyping:
			if sawChunk {
				t.Fatal("typing after chunks")
			}
		case models.EventChunk:
			sawChunk = true
		case models.EventMessage:
			if !sawChunk {
				t.Fatal("message before any chunk")
			}
		}
	}
	// stream terminates with synthesizing then done
	if events[len(events)-1].Name != models.EventDone {
		t.Fatalf("last event = %s", events[len(events)-1].Name)
	}
	if events[len(events)-2].Name != models.EventSynthesizing {
		t.Fatalf("second to last event = %s", events[len(events)-2].Name)
	}
}

// votingService lands an engagement update on the stored topic while a
// turn is generating, the way the ledger write-behind does when a client
// votes during a run.
type votingService struct {
	inner completion.Service
}

func (v *votingService) Complete(ctx context.Context, req completion.Request) (string, error) {
	return v.inner.Complete(ctx, req)
}

func (v *votingService) Stream(ctx context.Context, req completion.Request) (completion.TokenStream, error) {
	top, err := store.GetTopic("topic-1")
	if err == nil {
		top.Upvotes = 1
		top.LikedBy = []string{"acct-9"}
		_ = store.SaveTopic(top)
	}
	return v.inner.Stream(ctx, req)
}

func TestFinalSaveKeepsVotesLandedMidRun(t *testing.T) {
	svc := &votingService{inner: &completion.Scripted{Replies: []string{"A reply."}}}
	s, _ := newScheduler(t, svc)
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Race me", Tags: []string{"ai"}})

	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy:    TriggerHuman,
		InvitedPersona: "p-a",
		Rand:           rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	collect(t, ch)

	got, err := store.GetTopic("topic-1")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if got.Upvotes != 1 || len(got.LikedBy) != 1 || got.LikedBy[0] != "acct-9" {
		t.Fatalf("mid-run vote clobbered by final save: %+v", got)
	}
	if got.Status != models.StatusWaiting || got.TurnCount != 1 {
		t.Fatalf("run-owned fields not updated: %+v", got)
	}
}

func TestTurnCountAccumulatesOnTopic(t *testing.T) {
	s, _ := newScheduler(t, &completion.Scripted{Replies: []string{"one"}})
	top := saveTopic(t, models.Topic{ID: "topic-1", Title: "Count me", Tags: []string{"ai"}, TurnCount: 3})

	ch, err := s.Run(context.Background(), top, nil, Options{
		TriggeredBy:    TriggerHuman,
		InvitedPersona: "p-a",
		Rand:           rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	collect(t, ch)

	got, err := store.GetTopic("topic-1")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if got.TurnCount != 4 {
		t.Fatalf("TurnCount = %d, want 4", got.TurnCount)
	}
}
