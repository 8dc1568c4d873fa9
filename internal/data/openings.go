// Package data loads static YAML tables shipped alongside the server.
package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OpeningLine is one book line: a named sequence of long-algebraic
// move tokens from the starting position.
type OpeningLine struct {
	Name  string   `yaml:"name"`
	Moves []string `yaml:"moves"`
}

// OpeningBook holds the adversary's opening lines. The book is
// consulted by move-history prefix; off-book positions fall through to
// the search.
type OpeningBook struct {
	lines []OpeningLine
}

// LoadOpeningBook reads the book from a YAML file. A missing file
// yields an empty book, which disables book play.
func LoadOpeningBook(path string) (*OpeningBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OpeningBook{}, nil
		}
		return nil, fmt.Errorf("read opening book %s: %w", path, err)
	}

	var doc struct {
		Openings []OpeningLine `yaml:"openings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse opening book %s: %w", path, err)
	}
	return &OpeningBook{lines: doc.Openings}, nil
}

// BookFromLines builds a book directly from lines, bypassing the YAML
// file. Useful for fixtures and tools.
func BookFromLines(lines []OpeningLine) *OpeningBook {
	return &OpeningBook{lines: lines}
}

func (b *OpeningBook) Count() int {
	return len(b.lines)
}

// Continuations returns every distinct book move that follows the given
// move history.
func (b *OpeningBook) Continuations(history []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range b.lines {
		if len(line.Moves) <= len(history) {
			continue
		}
		match := true
		for i, mv := range history {
			if line.Moves[i] != mv {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		next := line.Moves[len(history)]
		if !seen[next] {
			seen[next] = true
			out = append(out, next)
		}
	}
	return out
}
