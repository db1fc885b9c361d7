// Package questionbank loads curated interview questions from YAML seed
// files and serves them as a fallback when the model under-delivers.
package questionbank

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

type bankYAML struct {
	Questions []bankYAMLItem `yaml:"questions"`
}

type bankYAMLItem struct {
	Question        string   `yaml:"question"`
	SuggestedAnswer string   `yaml:"suggested_answer"`
	Skills          []string `yaml:"skills"`
}

// Bank holds the loaded seed questions. Safe for concurrent use.
type Bank struct {
	mu        sync.RWMutex
	questions []domain.GeneratedQuestion
}

// Load reads a YAML seed file and returns the bank built from it. Paths
// outside the working directory are rejected unless explicitly allowed.
func Load(path string) (*Bank, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	abs = filepath.Clean(abs)
	wd = filepath.Clean(wd)
	if os.Getenv("QUESTIONBANK_ALLOW_ABSPATHS") != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return nil, fmt.Errorf("disallowed path: %s", abs)
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("seed file not found: %s", path)
		}
		return nil, err
	}
	return Parse(b)
}

// Parse builds a bank from raw YAML. It accepts either the structured
// document form or a plain list of question strings.
func Parse(b []byte) (*Bank, error) {
	var doc bankYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		var ls []string
		if err2 := yaml.Unmarshal(b, &ls); err2 != nil {
			return nil, fmt.Errorf("yaml parse: %w", err)
		}
		bank := &Bank{}
		for _, s := range ls {
			if s = strings.TrimSpace(s); s != "" {
				bank.questions = append(bank.questions, domain.GeneratedQuestion{Question: s})
			}
		}
		return bank, nil
	}
	bank := &Bank{}
	seen := make(map[string]struct{})
	for _, it := range doc.Questions {
		q := strings.TrimSpace(it.Question)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		bank.questions = append(bank.questions, domain.GeneratedQuestion{
			Question:        q,
			SuggestedAnswer: strings.TrimSpace(it.SuggestedAnswer),
			Skills:          it.Skills,
		})
	}
	return bank, nil
}

// Len reports the number of seed questions available.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.questions)
}

// Pick returns up to n seed questions, preferring those whose skill tags
// overlap the requested skills. Skill matching is case-insensitive.
func (b *Bank) Pick(skills []string, n int) []domain.GeneratedQuestion {
	if n <= 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	want := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		want[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	matched := make([]domain.GeneratedQuestion, 0, n)
	rest := make([]domain.GeneratedQuestion, 0, len(b.questions))
	for _, q := range b.questions {
		if overlaps(q.Skills, want) {
			matched = append(matched, q)
		} else {
			rest = append(rest, q)
		}
	}
	out := matched
	if len(out) < n {
		out = append(out, rest...)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func overlaps(tags []string, want map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := want[strings.ToLower(strings.TrimSpace(t))]; ok {
			return true
		}
	}
	return false
}
