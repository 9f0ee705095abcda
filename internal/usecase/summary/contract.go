package summary

import "context"

// TextReader reads the extracted text of a stored PDF.
type TextReader interface {
	Exists(filename string) bool
	ReadText(ctx context.Context, filename string) (string, error)
}
