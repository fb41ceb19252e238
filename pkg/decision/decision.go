// Package decision chooses, for an autonomous actor, whether to start a
// new topic or join an existing discussion, and which one.
package decision

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"roundtable/pkg/completion"
	"roundtable/pkg/logger"
	"roundtable/pkg/models"
)

// Action is the outcome kind of a participation decision.
type Action string

const (
	ActionAskNew        Action = "ask_new"
	ActionReplyExisting Action = "reply_existing"
)

// Trigger distinguishes interactive from scheduled decisions.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerAutonomous Trigger = "autonomous"
)

// Decision probabilities and ranking bounds, named per the policy they
// implement.
const (
	// probAutonomousReply: scheduled actors flip a fair coin between the
	// two actions to diversify autonomous behavior.
	probAutonomousReply = 0.5
	// probFallbackReply: weighted fallback toward joining when the model
	// response is unparsable.
	probFallbackReply = 0.8
	// actionRankDepth topics are shown to the model when deciding.
	actionRankDepth = 8
	// targetRankDepth topics are shown when choosing a join target.
	targetRankDepth = 12
	// targetFallbackDepth: uniform pick among the hottest few on failure.
	targetFallbackDepth = 3
)

// Candidate pairs a topic with its message count for heat ranking.
type Candidate struct {
	Topic        models.Topic
	MessageCount int
}

// heat scores a candidate: upvotes + messageCount.
func (c Candidate) heat() int { return c.Topic.Upvotes + c.MessageCount }

// Decision is the outcome: ask a new question or reply to Target.
type Decision struct {
	Action Action
	Target *models.Topic
	Reason string
}

// Service decides participation for autonomous actors.
type Service struct {
	svc completion.Service
}

// New builds the decision service.
func New(svc completion.Service) *Service {
	return &Service{svc: svc}
}

// Decide picks an action for the actor. No candidates always means
// ask_new; autonomous triggers flip a coin; manual triggers consult the
// completion service over the hottest topics with a weighted fallback.
func (s *Service) Decide(ctx context.Context, actor models.Persona, candidates []Candidate, trigger Trigger, rng *rand.Rand) Decision {
	if len(candidates) == 0 {
		return Decision{Action: ActionAskNew, Reason: "no open topics"}
	}

	var action Action
	var reason string
	switch trigger {
	case TriggerAutonomous:
		if rng.Float64() < probAutonomousReply {
			action = ActionReplyExisting
			reason = "scheduled coin flip"
		} else {
			action = ActionAskNew
			reason = "scheduled coin flip"
		}
	default:
		action, reason = s.decideManual(ctx, actor, candidates, rng)
	}

	if action == ActionAskNew {
		return Decision{Action: ActionAskNew, Reason: reason}
	}
	t := s.pickTarget(ctx, actor, candidates, rng)
	return Decision{Action: ActionReplyExisting, Target: &t, Reason: reason}
}

func (s *Service) decideManual(ctx context.Context, actor models.Persona, candidates []Candidate, rng *rand.Rand) (Action, string) {
	ranked := rankByHeat(candidates, actionRankDepth)
	text, err := s.svc.Complete(ctx, completion.Request{
		System: actor.Prompt + "\nDecide whether to ask a brand new question or join one of the listed discussions. Respond with one JSON object: {\"action\":\"ask_new\"|\"reply_existing\",\"reason\":\"...\"}.",
		Messages: []completion.ChatMessage{{
			Role:    completion.RoleUser,
			Content: "Current discussions:\n" + describe(ranked),
		}},
	})
	if err == nil {
		if action, reason, ok := completion.ParseAction(text); ok {
			return Action(action), reason
		}
	}
	logger.Info("decision_fallback", "actor", actor.ID, "error", err)
	if rng.Float64() < probFallbackReply {
		return ActionReplyExisting, "fallback weighted choice"
	}
	return ActionAskNew, "fallback weighted choice"
}

// pickTarget chooses the topic to join: model pick by id over the hottest
// targetRankDepth, uniform among the top targetFallbackDepth when the
// response is unparsable or names an unknown id.
func (s *Service) pickTarget(ctx context.Context, actor models.Persona, candidates []Candidate, rng *rand.Rand) models.Topic {
	ranked := rankByHeat(candidates, targetRankDepth)
	text, err := s.svc.Complete(ctx, completion.Request{
		System: actor.Prompt + "\nPick the discussion you find most interesting. Respond with one JSON object: {\"topic_id\":\"...\"}.",
		Messages: []completion.ChatMessage{{
			Role:    completion.RoleUser,
			Content: "Discussions:\n" + describe(ranked),
		}},
	})
	if err == nil {
		if id, ok := completion.ParseTopicChoice(text); ok {
			for _, c := range ranked {
				if c.Topic.ID == id {
					return c.Topic
				}
			}
			logger.Info("decision_target_unknown_id", "actor", actor.ID, "topic_id", id)
		}
	}
	depth := targetFallbackDepth
	if depth > len(ranked) {
		depth = len(ranked)
	}
	return ranked[rng.Intn(depth)].Topic
}

func rankByHeat(candidates []Candidate, depth int) []Candidate {
	ranked := append([]Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].heat() > ranked[j].heat() })
	if depth > 0 && len(ranked) > depth {
		ranked = ranked[:depth]
	}
	return ranked
}

func describe(ranked []Candidate) string {
	var b strings.Builder
	for _, c := range ranked {
		fmt.Fprintf(&b, "- id=%s heat=%d title=%s\n", c.Topic.ID, c.heat(), c.Topic.Title)
	}
	return b.String()
}
