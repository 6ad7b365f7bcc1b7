// Package audit appends import outcomes to an append-only JSONL trail.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the trail's file name inside the data directory.
const FileName = "audit.jsonl"

// Event kinds.
const (
	KindProjectImport        = "ProjectImport"
	KindProjectImportFailure = "ProjectImportFailure"
	KindGroupImport          = "GroupImport"
	KindGroupImportFailure   = "GroupImportFailure"
)

// Entry is one audit record. Result is "OK" or the failure description.
type Entry struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	AccountID int               `json:"account_id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Params    map[string]string `json:"params,omitempty"`
	Result    string            `json:"result"`
}

// Trail writes entries to one file. It is safe for concurrent use.
type Trail struct {
	path string
	mu   sync.Mutex
}

// Open returns a trail writing to path. The file is created on first append.
func Open(path string) *Trail {
	return &Trail{path: path}
}

// Path returns the trail's file path.
func (t *Trail) Path() string {
	return t.path
}

// Append assigns an ID and timestamp when missing and writes e as one line.
// It returns the entry ID.
func (t *Trail) Append(e *Entry) (string, error) {
	if e.Kind == "" {
		return "", fmt.Errorf("audit entry kind is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit entry: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(t.path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 - path from config
	if err != nil {
		return "", fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write audit entry: %w", err)
	}
	return e.ID, nil
}

// ReadAll returns every entry of the trail at path in file order. A missing
// file reads as empty.
func ReadAll(path string) ([]*Entry, error) {
	f, err := os.Open(path) // #nosec G304 - path from config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []*Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit trail line %d: %w", line, err)
		}
		out = append(out, &e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return out, nil
}
