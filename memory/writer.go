package memory

import (
	"strings"
	"time"
)

// SessionHeader is the default section header for facts written at t.
func SessionHeader(t time.Time) string {
	return "## Session - " + t.Format("2006-01-02 15:04")
}

// AppendFacts writes the new facts of a batch under a timestamped section
// and returns how many were written.
func AppendFacts(s *FileStore, facts []string) (int, error) {
	return AppendFactsWithHeader(s, facts, "")
}

// AppendFactsWithHeader is AppendFacts with a custom section header. A fact
// is new when its trimmed lower-cased form occurs neither in the store nor
// among the facts already accepted from this batch. Blank facts are dropped.
func AppendFactsWithHeader(s *FileStore, facts []string, header string) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return 0, err
	}
	haystack := strings.ToLower(existing)

	var accepted []string
	for _, f := range facts {
		fact := strings.TrimSpace(f)
		if fact == "" {
			continue
		}
		needle := strings.ToLower(fact)
		if strings.Contains(haystack, needle) {
			continue
		}
		accepted = append(accepted, fact)
		haystack += "\n" + needle
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	if header == "" {
		header = SessionHeader(time.Now())
	}
	lines := []string{"\n", header, ""}
	for _, fact := range accepted {
		lines = append(lines, "- "+fact)
	}
	lines = append(lines, "")

	if err := s.append(strings.Join(lines, "\n")); err != nil {
		return 0, err
	}
	return len(accepted), nil
}
