package completion

import (
	"encoding/json"
	"strings"
)

// The engine asks the model for structured side-channels as trailing or
// embedded JSON. Parsing is deliberately tolerant: every caller has a
// deterministic fallback, so a parse miss is never an error here.

// ExtractLikes splits generated text from a trailing likes line of the
// form {"likes":["p-economist", ...]}. Entries are persona/actor ids, with
// display names accepted as a compatibility shim. Returns the content
// without the trailing line and the extracted entries.
func ExtractLikes(text string) (string, []string) {
	trimmed := strings.TrimRight(text, " \t\n")
	idx := strings.LastIndexByte(trimmed, '\n')
	last := trimmed
	if idx >= 0 {
		last = trimmed[idx+1:]
	}
	last = strings.TrimSpace(last)
	if !strings.HasPrefix(last, "{") {
		return text, nil
	}
	var payload struct {
		Likes []string `json:"likes"`
	}
	if err := json.Unmarshal([]byte(last), &payload); err != nil || payload.Likes == nil {
		return text, nil
	}
	if idx < 0 {
		return "", payload.Likes
	}
	return strings.TrimRight(trimmed[:idx], " \t\n"), payload.Likes
}

// firstJSONObject extracts the first balanced {...} region of text.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseAction reads a participation decision {"action":..., "reason":...}.
func ParseAction(text string) (action, reason string, ok bool) {
	obj, found := firstJSONObject(text)
	if !found {
		return "", "", false
	}
	var payload struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return "", "", false
	}
	if payload.Action != "ask_new" && payload.Action != "reply_existing" {
		return "", "", false
	}
	return payload.Action, payload.Reason, true
}

// ParseTopicChoice reads a target-topic pick {"topic_id": "..."}.
func ParseTopicChoice(text string) (string, bool) {
	obj, found := firstJSONObject(text)
	if !found {
		return "", false
	}
	var payload struct {
		TopicID string `json:"topic_id"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil || payload.TopicID == "" {
		return "", false
	}
	return payload.TopicID, true
}

// ParseTopic reads a generated topic {"title":..., "description":...,
// "tags":[...]}.
func ParseTopic(text string) (title, description string, tags []string, ok bool) {
	obj, found := firstJSONObject(text)
	if !found {
		return "", "", nil, false
	}
	var payload struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil || strings.TrimSpace(payload.Title) == "" {
		return "", "", nil, false
	}
	return payload.Title, payload.Description, payload.Tags, true
}
