package models

// TopicStatus tracks where a topic sits in its discussion lifecycle.
type TopicStatus string

const (
	// StatusDiscussing marks a topic with a scheduler run in flight.
	StatusDiscussing TopicStatus = "discussing"
	// StatusWaiting marks a topic whose last run had no human turn.
	StatusWaiting TopicStatus = "waiting"
	// StatusActive marks a topic a human touched during the last run.
	StatusActive TopicStatus = "active"
)

// CreatorKind identifies who opened a topic.
type CreatorKind string

const (
	CreatorHuman  CreatorKind = "human"
	CreatorAgent  CreatorKind = "agent"
	CreatorSystem CreatorKind = "system"
)

type Topic struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Tags carries 1..5 topical tags used for persona affinity ranking.
	Tags      []string    `json:"tags"`
	CreatedBy CreatorKind `json:"created_by"`
	Status    TopicStatus `json:"status"`
	TurnCount int         `json:"turn_count"`
	// Counters are maintained alongside the engagement sets; the sets are
	// authoritative and the counters never go negative.
	Upvotes    int      `json:"upvotes"`
	Downvotes  int      `json:"downvotes"`
	LikedBy    []string `json:"liked_by,omitempty"`
	DislikedBy []string `json:"disliked_by,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time metadata or topic activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	// Deleted marks a topic as soft-deleted; topics are never hard-deleted
	// in normal operation.
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}
