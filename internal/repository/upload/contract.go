package upload

// TextExtractor turns raw document bytes into page-ordered plain text.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}
