package models

import "encoding/json"

// EventName enumerates the server-to-client stream events emitted while a
// discussion runs. The stream is finite and not restartable.
type EventName string

const (
	// EventTyping announces the persona about to act.
	EventTyping EventName = "typing"
	// EventChunk carries an incremental text delta tagged by the acting persona.
	EventChunk EventName = "chunk"
	// EventLikes carries engagement side-effects a persona issued this turn.
	EventLikes EventName = "likes"
	// EventMessage carries the finalized turn message.
	EventMessage EventName = "message"
	// EventSynthesizing announces the terminal bookkeeping phase.
	EventSynthesizing EventName = "synthesizing"
	// EventDone terminates the stream with the run result.
	EventDone EventName = "done"
	// EventError terminates the stream after a persistence failure.
	EventError EventName = "error"
)

// TurnEvent is one record on the discussion stream. Exactly one of the
// payload fields is populated depending on Name.
type TurnEvent struct {
	Name EventName `json:"event"`

	// typing / chunk
	PersonaID   string `json:"persona_id,omitempty"`
	PersonaName string `json:"persona_name,omitempty"`
	Delta       string `json:"delta,omitempty"`

	// likes: messages whose counters were updated this turn
	Liked []LikeEdge `json:"liked,omitempty"`

	// message
	Message *Message `json:"message,omitempty"`

	// done
	Result *TurnResult `json:"result,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// LikeEdge records a persona liking an earlier participant's message.
type LikeEdge struct {
	MessageID string `json:"message_id"`
	ActorID   string `json:"actor_id"`
	Upvotes   int    `json:"upvotes"`
}

// TurnResult summarizes a finished discussion run.
type TurnResult struct {
	TopicID   string      `json:"topic_id"`
	Status    TopicStatus `json:"status"`
	TurnCount int         `json:"turn_count"`
	TurnsRun  int         `json:"turns_run"`
	Messages  []Message   `json:"messages"`
}

// Data renders the event payload as the JSON body of an SSE record.
func (e TurnEvent) Data() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// VoteState is the outcome of a vote toggle as seen by the caller.
type VoteState struct {
	Upvotes   int  `json:"upvotes"`
	Downvotes int  `json:"downvotes"`
	Liked     bool `json:"liked"`
	Disliked  bool `json:"disliked"`
}
