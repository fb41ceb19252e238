package models

// AuthorKind distinguishes simulated persona authors from human accounts.
type AuthorKind string

const (
	AuthorPersona AuthorKind = "persona"
	AuthorHuman   AuthorKind = "human"
)

type Message struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	// Author is a persona id or an opaque account id depending on Kind.
	Author string     `json:"author"`
	Kind   AuthorKind `json:"kind"`
	// Display name of the author at write time; personas keep stable names,
	// humans may change theirs without rewriting history.
	AuthorName string `json:"author_name,omitempty"`
	Content    string `json:"content"`
	// Optional reply-to message ID; must reference a message in the same topic.
	ReplyTo    string   `json:"reply_to,omitempty"`
	Upvotes    int      `json:"upvotes"`
	Downvotes  int      `json:"downvotes"`
	LikedBy    []string `json:"liked_by,omitempty"`
	DislikedBy []string `json:"disliked_by,omitempty"`
	// Created timestamp (ns)
	TS int64 `json:"ts"`
	// Deleted flag; soft-delete implemented as an overwritten tombstone
	Deleted bool `json:"deleted,omitempty"`
}
