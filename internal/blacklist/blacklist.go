package blacklist

import (
	"bufio"
	"os"
	"strings"

	"github.com/mikey/jobmail/internal/core"
	"go.uber.org/zap"
)

// Filter rejects messages containing any configured term. Terms are
// matched case-insensitively as substrings of the subject, sender and
// body.
type Filter struct {
	terms  []string
	logger *zap.Logger
}

// NewFilter creates a filter over an already-normalized term list
func NewFilter(terms []string, logger *zap.Logger) *Filter {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			normalized = append(normalized, term)
		}
	}
	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized blacklist filter", zap.Int("terms", len(normalized)))
	}
	return &Filter{terms: normalized, logger: logger}
}

// Load reads a blacklist file: one term per line, trimmed and
// lowercased, blank lines and #-comments ignored. A missing file is a
// warning, not an error, and yields an empty filter.
func Load(path string, logger *zap.Logger) (*Filter, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if logger != nil {
				logger.Warn("Blacklist file not found, no terms will be applied",
					zap.String("path", path))
			}
			return NewFilter(nil, logger), nil
		}
		return nil, err
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewFilter(terms, logger), nil
}

// IsBlacklisted reports whether any term appears in the message's
// subject, sender or body
func (f *Filter) IsBlacklisted(msg *core.Message) bool {
	if len(f.terms) == 0 {
		return false
	}
	haystack := strings.ToLower(msg.Subject + " " + msg.Sender + " " + msg.Body)
	for _, term := range f.terms {
		if strings.Contains(haystack, term) {
			if f.logger != nil {
				f.logger.Debug("Message matched blacklist term",
					zap.String("message_id", msg.ID),
					zap.String("term", term))
			}
			return true
		}
	}
	return false
}

// Terms returns the normalized term list
func (f *Filter) Terms() []string {
	return f.terms
}
