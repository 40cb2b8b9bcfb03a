// Package chain mirrors audit entries into an append-only JSONL file where
// every line carries the SHA-256 of its predecessor.
package chain

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
)

type Writer struct {
	mu   sync.Mutex
	f    *os.File
	prev []byte // previous hash
}

// NewWriter opens path for appending and resumes the chain from its last line.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	prev, err := lastHash(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, prev: prev}, nil
}

func (w *Writer) Close() error { return w.f.Close() }

type Event struct {
	Time     time.Time      `json:"time"`
	Action   string         `json:"action"`
	ActorID  uint           `json:"actor_id,omitempty"`
	Entity   string         `json:"entity"`
	EntityID uint           `json:"entity_id,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Prev     string         `json:"prev"`
	Hash     string         `json:"hash"`
}

// Record appends e to the chain. It satisfies ports.AuditRecorder.
func (w *Writer) Record(_ context.Context, e *ports.AuditEntry) error {
	if e == nil {
		return nil
	}
	ev := Event{Time: e.CreatedAt.UTC(), Action: e.Action, Entity: e.EntityType, Meta: e.Metadata}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if e.UserID != nil {
		ev.ActorID = *e.UserID
	}
	if e.EntityID != nil {
		ev.EntityID = *e.EntityID
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	ev.Prev = hex.EncodeToString(w.prev)
	h, err := digest(w.prev, ev)
	if err != nil {
		return err
	}
	ev.Hash = hex.EncodeToString(h)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(append(b, '\n')); err != nil {
		return err
	}
	copy(w.prev, h)
	return nil
}

// digest hashes prev followed by the event encoded without its own hash.
func digest(prev []byte, ev Event) ([]byte, error) {
	ev.Hash = ""
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(append(append([]byte{}, prev...), b...))
	return h[:], nil
}

func lastHash(path string) ([]byte, error) {
	prev := make([]byte, 32)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return prev, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var last Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := json.Unmarshal(sc.Bytes(), &last); err != nil {
			return nil, fmt.Errorf("audit chain %s: %w", path, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if last.Hash == "" {
		return prev, nil
	}
	h, err := hex.DecodeString(last.Hash)
	if err != nil || len(h) != 32 {
		return nil, fmt.Errorf("audit chain %s: bad trailing hash", path)
	}
	return h, nil
}

// Verify walks the file and returns the number of valid entries, failing at
// the first line whose link or hash does not match.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	prev := make([]byte, 32)
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return n, fmt.Errorf("line %d: %w", n+1, err)
		}
		if ev.Prev != hex.EncodeToString(prev) {
			return n, fmt.Errorf("line %d: broken link", n+1)
		}
		h, err := digest(prev, ev)
		if err != nil {
			return n, err
		}
		if ev.Hash != hex.EncodeToString(h) {
			return n, fmt.Errorf("line %d: hash mismatch", n+1)
		}
		prev = h
		n++
	}
	return n, sc.Err()
}
