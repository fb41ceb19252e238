package novelty

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"roundtable/pkg/completion"
	"roundtable/pkg/logger"
)

// maxAttempts bounds generation retries; after that the fixed fallback
// pool guarantees a usable topic. The generator never returns an error.
const maxAttempts = 2

// Draft is a generated (or fallback) topic proposal.
type Draft struct {
	Title       string
	Description string
	Tags        []string
}

// angleSeeds and voiceSeeds vary the prompt between attempts so a retry
// does not reproduce the rejected duplicate.
var angleSeeds = []string{
	"a concrete dilemma people argue about at work",
	"a trend whose second-order effects are underrated",
	"a belief that was common five years ago and looks shaky now",
	"a trade-off with no comfortable answer",
	"something experts disagree about more than the public thinks",
}

var voiceSeeds = []string{
	"blunt and specific",
	"curious and open-ended",
	"mildly contrarian",
	"practical, career-focused",
	"big-picture and societal",
}

// fallbackPool is pre-authored material used when every attempt is a
// duplicate or unparsable. Occasionally stale beats ever failing.
var fallbackPool = []Draft{
	{Title: "Will AI take over most entry-level knowledge work?", Description: "Where does automation actually bite first, and what should juniors do about it?", Tags: []string{"ai", "careers"}},
	{Title: "Is remote work the future or a pandemic-era detour?", Description: "Offices are filling back up in some industries and emptying in others.", Tags: []string{"remote-work", "careers"}},
	{Title: "Does a computer science degree still pay for itself?", Description: "Bootcamps, AI assistants and hiring freezes have changed the math.", Tags: []string{"education", "careers", "engineering"}},
	{Title: "Should founders raise venture capital in the current market?", Description: "Cheap money is gone; what does that do to the default startup playbook?", Tags: []string{"startups", "economics"}},
	{Title: "Is the 40-hour work week obsolete?", Description: "Four-day pilots keep reporting good results, yet almost nobody switches.", Tags: []string{"careers", "psychology", "policy"}},
	{Title: "Can social media and good mental health coexist?", Description: "The evidence is messier than both camps claim.", Tags: []string{"health", "psychology"}},
}

// Generator produces novel topics through the dedup filter.
type Generator struct {
	svc completion.Service
}

// NewGenerator wires the completion service into topic generation.
func NewGenerator(svc completion.Service) *Generator {
	return &Generator{svc: svc}
}

// Generate asks the completion service for a fresh topic, retrying with a
// varied angle/voice seed pair when the result duplicates recent titles,
// and falling back to the pre-authored pool after maxAttempts. It always
// returns something usable.
func (g *Generator) Generate(ctx context.Context, recentTitles []string, rng *rand.Rand) Draft {
	if len(recentTitles) > 30 {
		recentTitles = recentTitles[:30]
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		angle := angleSeeds[rng.Intn(len(angleSeeds))]
		voice := voiceSeeds[rng.Intn(len(voiceSeeds))]
		text, err := g.svc.Complete(ctx, completion.Request{
			System: "You generate discussion topics for a public Q&A feed. Respond with a single JSON object: {\"title\":...,\"description\":...,\"tags\":[...]} with 1-5 short tags.",
			Messages: []completion.ChatMessage{{
				Role:    completion.RoleUser,
				Content: fmt.Sprintf("Propose one question: %s. Tone: %s. Avoid these recent topics:\n%s", angle, voice, strings.Join(recentTitles, "\n")),
			}},
		})
		if err != nil {
			logger.Warn("topic_generation_failed", "attempt", attempt, "error", err)
			continue
		}
		title, desc, tags, ok := completion.ParseTopic(text)
		if !ok {
			logger.Warn("topic_generation_unparsable", "attempt", attempt)
			continue
		}
		if IsDuplicate(title, recentTitles) {
			logger.Info("topic_generation_duplicate", "attempt", attempt, "title", title)
			continue
		}
		if len(tags) == 0 {
			tags = []string{"general"}
		}
		if len(tags) > 5 {
			tags = tags[:5]
		}
		return Draft{Title: title, Description: desc, Tags: tags}
	}
	d := fallbackPool[rng.Intn(len(fallbackPool))]
	logger.Info("topic_generation_fallback", "title", d.Title)
	return d
}
