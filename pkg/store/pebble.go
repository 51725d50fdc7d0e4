package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// Pebble is a pebble-backed Store.
//
// Key layout:
//
//	thread:<id>:meta                      thread metadata (no messages)
//	thread:<id>:msg:<padded-ts>-<seq>     one message, ordered by insertion
//
// The zero-padded nanosecond timestamp plus an atomic sequence keeps message
// keys sortable even when two appends share a timestamp.
type Pebble struct {
	db  *pebble.DB
	seq uint64

	// per-thread append locks; appends do read-modify-write on the meta key
	locks [lockStripes]sync.Mutex
}

// OpenPebble opens (or creates) a pebble database at the given path.
func OpenPebble(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

func (s *Pebble) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func metaKey(id string) []byte { return []byte("thread:" + id + ":meta") }

func (s *Pebble) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

const lockStripes = 64

func (s *Pebble) CreateThread(t models.Thread) error {
	meta := t.Summary()
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	if err := s.db.Set(metaKey(t.ID), b, pebble.Sync); err != nil {
		return err
	}
	for _, m := range t.Messages {
		if err := s.appendLocked(t.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Pebble) getMeta(id string) (models.Thread, error) {
	v, closer, err := s.db.Get(metaKey(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return models.Thread{}, ErrNotFound
		}
		return models.Thread{}, err
	}
	defer closer.Close()
	var t models.Thread
	if err := json.Unmarshal(v, &t); err != nil {
		return models.Thread{}, fmt.Errorf("corrupt thread meta %s: %w", id, err)
	}
	return t, nil
}

func (s *Pebble) setMeta(t models.Thread) error {
	b, err := json.Marshal(t.Summary())
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	return s.db.Set(metaKey(t.ID), b, pebble.Sync)
}

func (s *Pebble) GetThread(id string) (models.Thread, error) {
	t, err := s.getMeta(id)
	if err != nil {
		return models.Thread{}, err
	}
	prefix := []byte("thread:" + id + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return models.Thread{}, err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("skipping_corrupt_message", "thread", id, "key", string(iter.Key()))
			continue
		}
		t.Messages = append(t.Messages, m)
	}
	return t, nil
}

func (s *Pebble) ListThreads() ([]models.Thread, error) {
	prefix := []byte("thread:")
	suffix := []byte(":meta")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), suffix) {
			continue
		}
		var t models.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			logger.Warn("skipping_corrupt_thread", "key", string(iter.Key()))
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Pebble) RenameThread(id, title string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	t, err := s.getMeta(id)
	if err != nil {
		return err
	}
	t.Title = title
	t.UpdatedAt = time.Now().UTC()
	return s.setMeta(t)
}

func (s *Pebble) DeleteThread(id string) error {
	if _, err := s.getMeta(id); err != nil {
		return err
	}
	// the range covers the meta key and every message key
	start := []byte("thread:" + id + ":")
	end := []byte("thread:" + id + ";")
	return s.db.DeleteRange(start, end, pebble.Sync)
}

func (s *Pebble) AppendMessage(threadID string, m models.Message) error {
	mu := s.lockFor(threadID)
	mu.Lock()
	defer mu.Unlock()
	return s.appendLocked(threadID, m)
}

func (s *Pebble) appendLocked(threadID string, m models.Message) error {
	t, err := s.getMeta(threadID)
	if err != nil {
		return err
	}
	ts := time.Now().UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("thread:%s:msg:%020d-%06d", threadID, ts, n)
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.db.Set([]byte(key), b, pebble.Sync); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	maybeRetitle(&t, m)
	return s.setMeta(t)
}
