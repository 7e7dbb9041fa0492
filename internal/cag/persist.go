package cag

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"godra/internal/logging"
)

// maxRecordBytes bounds a single persisted record; decompilations dominate
// and stay far below this.
const maxRecordBytes = 4 << 20

// record is the wire form of one log entry: a kind tag, the entry
// timestamp, and the variant payload.
type record struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Store persists session logs as JSONL, one file per session id.
type Store struct {
	dir string
}

// NewStore creates session storage rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage root.
func (st *Store) Dir() string {
	return st.dir
}

func (st *Store) path(id string) string {
	return filepath.Join(st.dir, id+".jsonl")
}

// Save writes the full log in append order, one record per line,
// atomically replacing any previous file for the session.
func (st *Store) Save(s *SessionCache) error {
	entries := s.Entries()
	path := st.path(s.ID())

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode %s entry: %w", e.EntryKind(), err)
		}
		if err := enc.Encode(record{Kind: e.EntryKind(), Timestamp: e.Time(), Payload: payload}); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode %s entry: %w", e.EntryKind(), err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	logging.Info("session saved", "session", s.ID(), "entries", len(entries))
	return nil
}

// Load reconstructs a session log from storage, preserving record order.
// Malformed lines are skipped with a warning so a single bad record cannot
// take the whole session down.
func (st *Store) Load(id string) (*SessionCache, error) {
	f, err := os.Open(st.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", id, err)
	}
	defer f.Close()

	session := NewSessionCache(id)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		entry, err := decodeRecord(raw)
		if err != nil {
			logging.Warn("skipping malformed session record", "session", id, "line", line, "error", err)
			continue
		}
		session.appendEntry(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return session, nil
}

func decodeRecord(raw []byte) (Entry, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}

	switch rec.Kind {
	case KindContextItem:
		var e ContextItem
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, err
		}
		e.Timestamp = rec.Timestamp
		return e, nil
	case KindDecompiledFunction:
		var e DecompiledFunction
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, err
		}
		e.Timestamp = rec.Timestamp
		return e, nil
	case KindRenamedEntity:
		var e RenamedEntity
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, err
		}
		e.Timestamp = rec.Timestamp
		return e, nil
	case KindAnalysisResult:
		var e AnalysisResult
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, err
		}
		e.Timestamp = rec.Timestamp
		return e, nil
	default:
		return nil, fmt.Errorf("unknown entry kind %q", rec.Kind)
	}
}

// ListSessions returns stored session ids in sorted order.
func (st *Store) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	sort.Strings(ids)
	return ids, nil
}
