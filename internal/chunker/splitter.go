// Package chunker splits extracted document text into overlapping chunks.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/docuchat/docuchat/internal/domain"
)

// defaultSeparators are tried in order; the empty separator splits into runes.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter is a recursive character splitter. Lengths are counted in runes.
// It prefers paragraph, then line, then word boundaries, and only cuts inside
// a word when a single word is longer than Size.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Splitter producing chunks of at most size runes, sharing up
// to overlap runes with the previous chunk.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrValidation, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrValidation, size, overlap)
	}
	return &Splitter{size: size, overlap: overlap, separators: defaultSeparators}, nil
}

// NewFromConfig creates a Splitter from the pipeline chunking settings.
func NewFromConfig(cfg domain.PipelineConfig) (*Splitter, error) {
	return New(cfg.ChunkSize, cfg.ChunkOverlap)
}

// Size returns the maximum chunk length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the overlap between consecutive chunks.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the ordered chunks of text. Empty or whitespace-only text
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range strings.Split(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good, separator)...)
	}
	return chunks
}

// merge greedily packs pieces into chunks no longer than size, carrying up to
// overlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)

	var (
		chunks  []string
		current []string
		total   int
	)
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > s.size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.overlap || (joinedLen(n) > s.size && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total = joinedLen(n)
		current = append(current, p)
	}

	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
