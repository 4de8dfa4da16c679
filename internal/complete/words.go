// Package complete provides word completion for a position in a file.
package complete

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// Words completes the identifier ending at a file position with the other
// identifiers found in the same file.
type Words struct {
	// Limit caps the number of candidates; 0 returns all of them.
	Limit int
}

// NewWords constructs a word completion provider.
func NewWords(limit int) *Words {
	return &Words{Limit: limit}
}

// Complete returns sorted, unique candidates sharing the prefix that ends at
// line (1-based) and column (0-based, in runes). The prefix itself is never
// a candidate.
func (w *Words) Complete(ctx context.Context, filePath string, line, column int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	if line < 1 || line > len(lines) {
		return nil, fmt.Errorf("line %d out of range (1-%d)", line, len(lines))
	}
	current := []rune(strings.TrimSuffix(lines[line-1], "\r"))
	if column < 0 || column > len(current) {
		return nil, fmt.Errorf("column %d out of range (0-%d)", column, len(current))
	}
	prefix := prefixAt(current, column)
	log := pslog.Ctx(ctx).With("file", filePath, "line", line, "column", column)
	if prefix == "" {
		log.Debug("complete empty prefix")
		return nil, nil
	}

	seen := make(map[string]struct{})
	for _, word := range identifiers(string(data)) {
		if word == prefix || !strings.HasPrefix(word, prefix) {
			continue
		}
		seen[word] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for word := range seen {
		out = append(out, word)
	}
	sort.Strings(out)
	if w != nil && w.Limit > 0 && len(out) > w.Limit {
		out = out[:w.Limit]
	}
	log.Debug("complete candidates", "prefix", prefix, "count", len(out))
	return out, nil
}

func prefixAt(line []rune, column int) string {
	start := column
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	return string(line[start:column])
}

func identifiers(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
