package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"roundtable/pkg/logger"
	"roundtable/pkg/models"
)

var db *pebble.DB
var dbPath string

// seq provides a small counter to reduce key collisions when multiple
// messages share the same nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// SaveTopic stores topic metadata under a reserved key. Writes are
// idempotent keyed by the topic id: the last write wins.
func SaveTopic(t models.Topic) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal topic: %w", err)
	}
	key := []byte("topic:" + t.ID + ":meta")
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_topic_failed", "topic", t.ID, "error", err)
		return err
	}
	logger.Debug("topic_saved", "topic", t.ID)
	return nil
}

// GetTopic returns the stored topic for a given topic ID.
func GetTopic(topicID string) (models.Topic, error) {
	var t models.Topic
	if db == nil {
		return t, notOpen()
	}
	key := []byte("topic:" + topicID + ":meta")
	v, closer, err := db.Get(key)
	if err != nil {
		return t, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid stored topic: %w", err)
	}
	return t, nil
}

// ListTopics returns all saved topics ordered by creation time descending.
// Soft-deleted topics are skipped.
func ListTopics(limit int) ([]models.Topic, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("topic:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Topic
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var t models.Topic
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		if t.Deleted {
			continue
		}
		out = append(out, t)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SoftDeleteTopic marks the topic as deleted; topics are never hard-deleted
// in normal operation.
func SoftDeleteTopic(topicID string) error {
	t, err := GetTopic(topicID)
	if err != nil {
		return err
	}
	t.Deleted = true
	t.DeletedTS = time.Now().UTC().UnixNano()
	return SaveTopic(t)
}

// SaveMessage upserts a message. The write is idempotent keyed by the
// message id: the first save allocates a time-ordered thread key and
// records it under a locator index; later saves with the same id rewrite
// the same thread key so exactly one logical record remains, carrying the
// later write's content.
func SaveMessage(m models.Message) error {
	if db == nil {
		return notOpen()
	}
	if m.ID == "" || m.Topic == "" {
		return fmt.Errorf("message id and topic are required")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	locKey := []byte("msgidx:" + m.ID)
	var threadKey []byte
	if v, closer, gerr := db.Get(locKey); gerr == nil {
		threadKey = append([]byte(nil), v...)
		if closer != nil {
			_ = closer.Close()
		}
	} else {
		// Key format: topic:<topicID>:msg:<unix_nano_padded>-<seq>
		ts := m.TS
		if ts == 0 {
			ts = time.Now().UTC().UnixNano()
		}
		s := atomic.AddUint64(&seq, 1)
		threadKey = []byte(fmt.Sprintf("topic:%s:msg:%020d-%06d", m.Topic, ts, s))
		if err := db.Set(locKey, threadKey, pebble.Sync); err != nil {
			logger.Error("save_message_index_failed", "msg_id", m.ID, "error", err)
			return err
		}
	}

	if err := db.Set(threadKey, data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "topic", m.Topic, "key", string(threadKey), "error", err)
		return err
	}
	logger.Debug("message_saved", "topic", m.Topic, "msg_id", m.ID)
	return nil
}

// GetMessage returns the stored message for a given message ID.
func GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	loc, closer, err := db.Get([]byte("msgidx:" + msgID))
	if err != nil {
		return m, err
	}
	threadKey := append([]byte(nil), loc...)
	if closer != nil {
		_ = closer.Close()
	}
	v, closer2, err := db.Get(threadKey)
	if err != nil {
		return m, err
	}
	if closer2 != nil {
		defer closer2.Close()
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// ListMessages returns all messages for a topic in insertion order.
func ListMessages(topicID string) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("topic:" + topicID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("list_messages_invalid_json", "topic", topicID, "key", string(iter.Key()))
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// CountMessages returns the number of messages stored for a topic.
func CountMessages(topicID string) (int, error) {
	if db == nil {
		return 0, notOpen()
	}
	prefix := []byte("topic:" + topicID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		n++
	}
	return n, iter.Error()
}

// SetFavorite stores or removes the favorite edge for (actor, target) and
// returns the new boolean state.
func SetFavorite(actorID, targetID string, on bool) (bool, error) {
	if db == nil {
		return false, notOpen()
	}
	key := []byte("fav:" + actorID + ":" + targetID)
	if on {
		if err := db.Set(key, []byte("1"), pebble.Sync); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := db.Delete(key, pebble.Sync); err != nil {
		return false, err
	}
	return false, nil
}

// HasFavorite reports whether the favorite edge exists.
func HasFavorite(actorID, targetID string) (bool, error) {
	if db == nil {
		return false, notOpen()
	}
	_, closer, err := db.Get([]byte("fav:" + actorID + ":" + targetID))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if closer != nil {
		_ = closer.Close()
	}
	return true, nil
}

// ListFavorites returns the target ids an actor has favorited.
func ListFavorites(actorID string) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("fav:" + actorID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, string(iter.Key()[len(prefix):]))
	}
	return out, iter.Error()
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	pfx := []byte(prefix)
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Key()))
		}
		return out, iter.Error()
	}
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}
