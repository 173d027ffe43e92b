package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persister stores entries outside the in-memory log.
type Persister[T any] interface {
	Persist(item T) error
}

// JSONLStore appends entries as JSON lines to a file. The file is an audit
// trail; it is never read back into the ring except by Restore.
type JSONLStore[T any] struct {
	FilePath string

	mu sync.Mutex
}

// NewJSONLStore creates a JSON lines store at path.
func NewJSONLStore[T any](path string) *JSONLStore[T] {
	return &JSONLStore[T]{FilePath: path}
}

// Persist appends item as one line.
func (s *JSONLStore[T]) Persist(item T) error {
	if s.FilePath == "" {
		return nil
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}

// Load reads the newest limit entries back, oldest first. A missing file
// yields no entries. Malformed lines are skipped.
func (s *JSONLStore[T]) Load(limit int) ([]T, error) {
	if s.FilePath == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // Nothing persisted yet
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	ring := New[T](limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var item T
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			continue
		}
		ring.push(item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ring.Snapshot(), nil
}

// Ensure JSONLStore implements Persister
var _ Persister[int] = (*JSONLStore[int])(nil)
