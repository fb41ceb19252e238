package ledger

import (
	"sort"
	"sync"

	"roundtable/pkg/logger"
	"roundtable/pkg/models"
)

// Vote is the direction of a toggle.
type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// record is the authoritative engagement state for one target. Records are
// immutable once installed; every transition builds a fresh record and
// swaps it in with CompareAndSwap. Set membership is the source of truth;
// the counters ride along and are clamped at zero.
type record struct {
	liked     map[string]struct{}
	disliked  map[string]struct{}
	upvotes   int
	downvotes int
}

func emptyRecord() *record {
	return &record{liked: map[string]struct{}{}, disliked: map[string]struct{}{}}
}

func (r *record) clone() *record {
	n := &record{
		liked:     make(map[string]struct{}, len(r.liked)),
		disliked:  make(map[string]struct{}, len(r.disliked)),
		upvotes:   r.upvotes,
		downvotes: r.downvotes,
	}
	for k := range r.liked {
		n.liked[k] = struct{}{}
	}
	for k := range r.disliked {
		n.disliked[k] = struct{}{}
	}
	return n
}

// Snapshot is a read-only copy of a target's engagement state handed to
// the persister and to callers.
type Snapshot struct {
	Upvotes    int
	Downvotes  int
	LikedBy    []string
	DislikedBy []string
}

// PersistFunc receives the state installed by a successful transition.
// Persistence is write-behind and best-effort; failures are logged by the
// caller and never roll back the in-memory transition.
type PersistFunc func(targetID string, snap Snapshot) error

// Ledger is the atomic vote/favorite toggle state machine over shared
// counters. Safe for concurrent use.
type Ledger struct {
	targets sync.Map // targetID -> *record
	persist PersistFunc
}

// New returns a ledger. persist may be nil for purely in-memory use.
func New(persist PersistFunc) *Ledger {
	return &Ledger{persist: persist}
}

// Hydrate seeds a target's state from stored sets, typically at startup.
// Counters are recomputed from set sizes so stale stored counters cannot
// survive a restart.
func (l *Ledger) Hydrate(targetID string, likedBy, dislikedBy []string) {
	r := emptyRecord()
	for _, a := range likedBy {
		r.liked[a] = struct{}{}
	}
	for _, a := range dislikedBy {
		// mutual exclusion: a liked actor cannot also be disliked
		if _, ok := r.liked[a]; ok {
			continue
		}
		r.disliked[a] = struct{}{}
	}
	r.upvotes = len(r.liked)
	r.downvotes = len(r.disliked)
	l.targets.Store(targetID, r)
}

func (l *Ledger) load(targetID string) *record {
	if v, ok := l.targets.Load(targetID); ok {
		return v.(*record)
	}
	v, _ := l.targets.LoadOrStore(targetID, emptyRecord())
	return v.(*record)
}

// ToggleVote applies one vote toggle for (target, actor). The transition
// ladder tries, in order: undo an existing same-direction vote, switch an
// opposite-direction vote, then record a fresh vote. Each candidate's
// precondition is checked against the current record and the new record is
// installed with CompareAndSwap; on contention the ladder re-evaluates, so
// exactly one transition wins per call.
func (l *Ledger) ToggleVote(targetID, actorID string, vote Vote) models.VoteState {
	for {
		cur := l.load(targetID)
		next := transition(cur, actorID, vote)
		if l.targets.CompareAndSwap(targetID, cur, next) {
			st := models.VoteState{Upvotes: next.upvotes, Downvotes: next.downvotes}
			_, st.Liked = next.liked[actorID]
			_, st.Disliked = next.disliked[actorID]
			l.flush(targetID, next)
			return st
		}
	}
}

func transition(cur *record, actorID string, vote Vote) *record {
	next := cur.clone()
	_, liked := cur.liked[actorID]
	_, disliked := cur.disliked[actorID]
	switch {
	case vote == VoteUp && liked:
		// liked + up -> none
		delete(next.liked, actorID)
		next.upvotes--
	case vote == VoteUp && disliked:
		// disliked + up -> liked, single transition
		delete(next.disliked, actorID)
		next.liked[actorID] = struct{}{}
		next.downvotes--
		next.upvotes++
	case vote == VoteUp:
		// none + up -> liked
		next.liked[actorID] = struct{}{}
		next.upvotes++
	case vote == VoteDown && disliked:
		// disliked + down -> none
		delete(next.disliked, actorID)
		next.downvotes--
	case vote == VoteDown && liked:
		// liked + down -> disliked, single transition
		delete(next.liked, actorID)
		next.disliked[actorID] = struct{}{}
		next.upvotes--
		next.downvotes++
	default:
		// none + down -> disliked
		next.disliked[actorID] = struct{}{}
		next.downvotes++
	}
	if next.upvotes < 0 {
		next.upvotes = 0
	}
	if next.downvotes < 0 {
		next.downvotes = 0
	}
	return next
}

// RecordLike adds actor to the target's liked set if absent, bumping the
// upvote counter. Used for persona-issued likes during a turn; returns the
// new upvote count and whether the like was applied.
func (l *Ledger) RecordLike(targetID, actorID string) (int, bool) {
	for {
		cur := l.load(targetID)
		if _, ok := cur.liked[actorID]; ok {
			return cur.upvotes, false
		}
		next := cur.clone()
		delete(next.disliked, actorID)
		next.liked[actorID] = struct{}{}
		next.upvotes++
		if l.targets.CompareAndSwap(targetID, cur, next) {
			l.flush(targetID, next)
			return next.upvotes, true
		}
	}
}

// State returns the current snapshot for a target.
func (l *Ledger) State(targetID string) Snapshot {
	return snapshot(l.load(targetID))
}

func snapshot(r *record) Snapshot {
	s := Snapshot{Upvotes: r.upvotes, Downvotes: r.downvotes}
	for a := range r.liked {
		s.LikedBy = append(s.LikedBy, a)
	}
	for a := range r.disliked {
		s.DislikedBy = append(s.DislikedBy, a)
	}
	sort.Strings(s.LikedBy)
	sort.Strings(s.DislikedBy)
	return s
}

func (l *Ledger) flush(targetID string, r *record) {
	if l.persist == nil {
		return
	}
	if err := l.persist(targetID, snapshot(r)); err != nil {
		logger.Error("ledger_persist_failed", "target", targetID, "error", err)
	}
}
