package core

import "context"

// CompletionProvider returns ordered completion candidates for a position
// in a file. Line is 1-based, column is a 0-based rune offset.
type CompletionProvider interface {
	Complete(ctx context.Context, filePath string, line, column int) ([]string, error)
}
