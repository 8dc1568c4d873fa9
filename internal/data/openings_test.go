package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBook = `
openings:
  - name: "King Pawn A"
    moves: [e2e4, e7e5, g1f3]
  - name: "King Pawn B"
    moves: [e2e4, e7e5, f1c4]
  - name: "Queen Pawn"
    moves: [d2d4, d7d5]
`

func writeBook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOpeningBook(t *testing.T) {
	book, err := LoadOpeningBook(writeBook(t, sampleBook))
	require.NoError(t, err)
	assert.Equal(t, 3, book.Count())
}

func TestMissingFileYieldsEmptyBook(t *testing.T) {
	book, err := LoadOpeningBook(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, book.Count())
	assert.Empty(t, book.Continuations(nil))
}

func TestMalformedBookIsAnError(t *testing.T) {
	_, err := LoadOpeningBook(writeBook(t, "openings: [not: {a: book"))
	assert.Error(t, err)
}

func TestContinuationsByPrefix(t *testing.T) {
	book, err := LoadOpeningBook(writeBook(t, sampleBook))
	require.NoError(t, err)

	first := book.Continuations(nil)
	assert.ElementsMatch(t, []string{"e2e4", "d2d4"}, first, "duplicates collapse")

	after := book.Continuations([]string{"e2e4", "e7e5"})
	assert.ElementsMatch(t, []string{"g1f3", "f1c4"}, after)

	assert.Empty(t, book.Continuations([]string{"c2c4"}), "off book")
	assert.Empty(t, book.Continuations([]string{"d2d4", "d7d5"}), "line exhausted")
}

func TestShippedBookParses(t *testing.T) {
	book, err := LoadOpeningBook(filepath.Join("..", "..", "data", "yaml", "openings.yaml"))
	require.NoError(t, err)
	assert.Greater(t, book.Count(), 0)
	assert.Contains(t, book.Continuations(nil), "e2e4")
}
