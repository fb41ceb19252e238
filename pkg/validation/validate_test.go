package validation

import (
	"strings"
	"testing"

	"roundtable/pkg/models"
)

func validTopic() models.Topic {
	return models.Topic{
		ID:        "topic-1",
		Title:     "Is remote work the future?",
		Tags:      []string{"remote-work", "careers"},
		CreatedBy: models.CreatorHuman,
		Status:    models.StatusWaiting,
	}
}

func TestValidateTopicAcceptsValid(t *testing.T) {
	if err := ValidateTopic(validTopic()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTopicRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Topic)
	}{
		{"empty title", func(tp *models.Topic) { tp.Title = "  " }},
		{"title too long", func(tp *models.Topic) { tp.Title = strings.Repeat("长", 201) }},
		{"no tags", func(tp *models.Topic) { tp.Tags = nil }},
		{"too many tags", func(tp *models.Topic) { tp.Tags = []string{"a", "b", "c", "d", "e", "f"} }},
		{"blank tag", func(tp *models.Topic) { tp.Tags = []string{"ok", " "} }},
		{"bad creator", func(tp *models.Topic) { tp.CreatedBy = "robot" }},
		{"bad status", func(tp *models.Topic) { tp.Status = "paused" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tp := validTopic()
			tc.mutate(&tp)
			if err := ValidateTopic(tp); err == nil {
				t.Fatalf("expected rejection for %s", tc.name)
			}
		})
	}
}

func TestValidateTopicCountsRunesNotBytes(t *testing.T) {
	tp := validTopic()
	// 200 CJK runes are within the limit even though the byte length is 600
	tp.Title = strings.Repeat("问", 200)
	if err := ValidateTopic(tp); err != nil {
		t.Fatalf("200-rune title must pass: %v", err)
	}
}

func TestValidateMessage(t *testing.T) {
	m := models.Message{
		Topic:   "topic-1",
		Author:  "acct-1",
		Kind:    models.AuthorHuman,
		Content: "A question about the premise.",
	}
	if err := ValidateMessage(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := m
	bad.Content = "   "
	if err := ValidateMessage(bad); err == nil {
		t.Fatal("blank content must fail")
	}

	bad = m
	bad.Kind = "bot"
	if err := ValidateMessage(bad); err == nil {
		t.Fatal("unknown author kind must fail")
	}

	bad = m
	bad.Topic = ""
	if err := ValidateMessage(bad); err == nil {
		t.Fatal("missing topic must fail")
	}

	// tombstones carry no content
	del := m
	del.Content = ""
	del.Deleted = true
	if err := ValidateMessage(del); err != nil {
		t.Fatalf("deleted message without content must pass: %v", err)
	}
}

func TestSetLimitsOverrides(t *testing.T) {
	old := limits
	t.Cleanup(func() { limits = old })

	SetLimits(Limits{MaxTitleLen: 10})
	tp := validTopic()
	tp.Title = "a title well over ten runes"
	if err := ValidateTopic(tp); err == nil {
		t.Fatal("tightened title limit must reject")
	}
}
