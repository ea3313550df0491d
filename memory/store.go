package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

// FileStore is one markdown memory file. The mutex covers every
// read-modify-write on the file made through this handle.
type FileStore struct {
	path  string
	label string

	mu sync.Mutex
}

// NewFileStore returns a handle for path; label names the store in its
// management header, e.g. "User" or "Company".
func NewFileStore(path, label string) *FileStore {
	return &FileStore{path: path, label: label}
}

func (s *FileStore) Path() string  { return s.path }
func (s *FileStore) Label() string { return s.label }

// Header is the management comment a fresh or cleared store starts with.
func (s *FileStore) Header() string {
	return fmt.Sprintf("<!-- %s memory - managed by the memory system -->\n", s.label)
}

// Read returns the raw file content. A missing file reads as empty.
func (s *FileStore) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Append writes text at the end of the file, creating it with its header
// when absent.
func (s *FileStore) Append(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(text)
}

// Clear resets the file to its header line.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, []byte(s.Header()), 0o644); err != nil {
		return fmt.Errorf("memory: clear %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read %s: %w", s.path, err)
	}
	return string(data), nil
}

func (s *FileStore) append(text string) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	_, statErr := os.Stat(s.path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	if fresh {
		text = s.Header() + text
	}
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("memory: append %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) ensureDir() error {
	dir := filepath.Dir(s.path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memory: create %s: %w", dir, err)
	}
	return nil
}

// Render strips management comments and surrounding whitespace for display.
func Render(content string) string {
	return strings.TrimSpace(commentRe.ReplaceAllString(content, ""))
}
