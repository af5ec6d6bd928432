// Package engine wraps the Aguara rule engine for scanning tool-result text
// against the injection rule catalog. The catalog itself is data, not code:
// a small embedded set ships under rules/, and operators can point a custom
// rules directory at the scanner, hot-reloaded on change.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/garagon/aguara"

	"github.com/Intellirim/inalign/internal/detect"
	"github.com/Intellirim/inalign/rules"
)

// Scanner scans text with Aguara's built-in rules plus inalign's embedded
// injection rules plus an optional custom rules directory. It satisfies
// detect.TextScanner.
type Scanner struct {
	mu      sync.RWMutex
	opts    []aguara.Option
	tempDir string // extraction target for embedded rules

	customDir string
}

// NewScanner creates a scanner. customRulesDir may be empty.
func NewScanner(customRulesDir string) *Scanner {
	s := &Scanner{customDir: customRulesDir}

	dir, err := ExtractRulesDir()
	if err == nil && dir != "" {
		s.tempDir = dir
	}
	s.rebuildOpts()
	return s
}

func (s *Scanner) rebuildOpts() {
	var opts []aguara.Option
	if s.tempDir != "" {
		opts = append(opts, aguara.WithCustomRules(s.tempDir))
	}
	if s.customDir != "" {
		opts = append(opts, aguara.WithCustomRules(s.customDir))
	}
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// ScanText matches content against the loaded rule set.
func (s *Scanner) ScanText(ctx context.Context, content string) ([]detect.TextMatch, error) {
	s.mu.RLock()
	opts := s.opts
	s.mu.RUnlock()

	result, err := aguara.ScanContent(ctx, content, "tool_result.md", opts...)
	if err != nil {
		return nil, fmt.Errorf("aguara scan: %w", err)
	}

	var matches []detect.TextMatch
	for _, f := range result.Findings {
		matches = append(matches, detect.TextMatch{
			RuleID:   f.RuleID,
			RuleName: f.RuleName,
			Severity: f.Severity.String(),
			Excerpt:  truncate(f.MatchedText, 200),
		})
	}
	return matches, nil
}

// RulesCount returns the total number of loaded rules.
func (s *Scanner) RulesCount(ctx context.Context) int {
	s.mu.RLock()
	opts := s.opts
	s.mu.RUnlock()

	result, err := aguara.ScanContent(ctx, "probe", "probe.md", opts...)
	if err != nil {
		return 0
	}
	return result.RulesLoaded
}

// ListRules returns metadata for every loaded rule.
func (s *Scanner) ListRules() []aguara.RuleInfo {
	s.mu.RLock()
	opts := s.opts
	s.mu.RUnlock()
	return aguara.ListRules(opts...)
}

// Close cleans up temporary rule files.
func (s *Scanner) Close() {
	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir) //nolint:errcheck // best-effort cleanup
	}
}

// ExtractRulesDir writes the embedded rule YAMLs to a temp directory so
// Aguara can load them from disk. The caller removes the directory when
// done; Scanner does so in Close.
func ExtractRulesDir() (string, error) {
	dir, err := os.MkdirTemp("", "inalign-rules-*")
	if err != nil {
		return "", err
	}

	embedded := rules.FS()
	err = fs.WalkDir(embedded, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(embedded, path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, filepath.Base(path)), data, 0o644)
	})
	if err != nil {
		_ = os.RemoveAll(dir) //nolint:errcheck // best-effort cleanup
		return "", err
	}
	return dir, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
