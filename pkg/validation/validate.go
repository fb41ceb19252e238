package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"roundtable/pkg/models"
)

// Limits are configurable caps applied to inbound topics and messages.
type Limits struct {
	MaxTitleLen   int
	MaxContentLen int
	MaxTags       int
}

var limits = Limits{MaxTitleLen: 200, MaxContentLen: 8000, MaxTags: 5}

// SetLimits installs the validation limits, usually from config at startup.
func SetLimits(l Limits) {
	if l.MaxTitleLen > 0 {
		limits.MaxTitleLen = l.MaxTitleLen
	}
	if l.MaxContentLen > 0 {
		limits.MaxContentLen = l.MaxContentLen
	}
	if l.MaxTags > 0 {
		limits.MaxTags = l.MaxTags
	}
}

var validStatus = map[models.TopicStatus]struct{}{
	models.StatusDiscussing: {},
	models.StatusWaiting:    {},
	models.StatusActive:     {},
}

var validCreator = map[models.CreatorKind]struct{}{
	models.CreatorHuman:  {},
	models.CreatorAgent:  {},
	models.CreatorSystem: {},
}

// ValidateTopic checks the structural invariants of a topic before any
// turn runs or write happens.
func ValidateTopic(t models.Topic) error {
	var errs []string
	if strings.TrimSpace(t.Title) == "" {
		errs = append(errs, "title is required")
	}
	if utf8.RuneCountInString(t.Title) > limits.MaxTitleLen {
		errs = append(errs, fmt.Sprintf("title exceeds %d runes", limits.MaxTitleLen))
	}
	if len(t.Tags) < 1 || len(t.Tags) > limits.MaxTags {
		errs = append(errs, fmt.Sprintf("tags must have 1..%d entries", limits.MaxTags))
	}
	for _, tag := range t.Tags {
		if strings.TrimSpace(tag) == "" {
			errs = append(errs, "empty tag")
			break
		}
	}
	if t.CreatedBy != "" {
		if _, ok := validCreator[t.CreatedBy]; !ok {
			errs = append(errs, "invalid created_by")
		}
	}
	if t.Status != "" {
		if _, ok := validStatus[t.Status]; !ok {
			errs = append(errs, "invalid status")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateMessage checks a message before persistence. Reply-target
// topic consistency is checked by the caller against loaded history.
func ValidateMessage(m models.Message) error {
	var errs []string
	if m.Topic == "" {
		errs = append(errs, "topic is required")
	}
	if m.Author == "" {
		errs = append(errs, "author is required")
	}
	if m.Kind != models.AuthorPersona && m.Kind != models.AuthorHuman {
		errs = append(errs, "invalid author kind")
	}
	if strings.TrimSpace(m.Content) == "" && !m.Deleted {
		errs = append(errs, "content is required")
	}
	if utf8.RuneCountInString(m.Content) > limits.MaxContentLen {
		errs = append(errs, fmt.Sprintf("content exceeds %d runes", limits.MaxContentLen))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
