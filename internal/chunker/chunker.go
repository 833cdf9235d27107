// Package chunker splits extracted text into overlapping, size-bounded
// segments for embedding. Chunking is a pure function over its input: the
// same text and options always produce the same chunks.
package chunker

import (
	"strings"
	"unicode"

	"github.com/arlo/knowbase/internal/domain"
)

// Options control chunk sizing and boundary behavior.
type Options struct {
	// ChunkSize is the target maximum chunk length in characters.
	ChunkSize int

	// Overlap is the number of trailing characters of a chunk repeated at
	// the start of the next one.
	Overlap int

	// PreserveParagraphs keeps chunk boundaries on paragraph edges.
	PreserveParagraphs bool

	// MinChunkSize discards trailing fragments smaller than this.
	MinChunkSize int
}

// DefaultOptions returns the standard chunking parameters.
func DefaultOptions() Options {
	return Options{
		ChunkSize:          1000,
		Overlap:            200,
		PreserveParagraphs: true,
		MinChunkSize:       100,
	}
}

// sanitize clamps nonsensical option combinations rather than failing:
// the chunker sits in the middle of the pipeline and bad tuning should
// degrade chunk quality, not ingestion.
func (o Options) sanitize() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.ChunkSize {
		o.Overlap = o.ChunkSize / 2
	}
	if o.MinChunkSize < 0 {
		o.MinChunkSize = 0
	}
	return o
}

// Chunk splits text into ordered chunks. Each chunk carries start/end byte
// offsets into the original text; within one document the chunk index is
// the same index stored and retrieved end-to-end.
func Chunk(text string, opts Options) []domain.Chunk {
	opts = opts.sanitize()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []domain.Chunk
	if opts.PreserveParagraphs {
		chunks = chunkParagraphs(text, opts)
	} else {
		chunks = slideWindow(text, 0, opts)
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// span is a half-open byte range into the original text.
type span struct {
	start, end int
}

// chunkParagraphs accumulates paragraphs into a buffer and flushes on
// overflow, seeding each new buffer with the overlap tail of the flushed
// chunk. Boundaries therefore always fall on paragraph edges except where
// overlap re-injects trailing context, and no chunk exceeds
// ChunkSize + Overlap. Paragraphs larger than ChunkSize fall back to the
// sliding window internally.
func chunkParagraphs(text string, opts Options) []domain.Chunk {
	paras := splitParagraphs(text)

	var chunks []domain.Chunk
	var buf strings.Builder
	bufStart, bufEnd := 0, 0
	seedOnly := false // buffer holds only the overlap seed, no paragraph yet

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		content := buf.String()
		if len(content) >= opts.MinChunkSize {
			chunks = append(chunks, domain.Chunk{
				Text:      content,
				StartChar: bufStart,
				EndChar:   bufEnd,
			})
		}

		seed := ""
		if opts.Overlap > 0 {
			seed = content
			if len(seed) > opts.Overlap {
				seed = seed[len(seed)-opts.Overlap:]
			}
		}
		buf.Reset()
		if seed != "" {
			buf.WriteString(seed)
			bufStart = bufEnd - len(seed)
			seedOnly = true
		}
	}

	for _, p := range paras {
		ptext := text[p.start:p.end]

		// Oversized paragraph: flush what we have and window through it.
		if len(ptext) > opts.ChunkSize {
			flush()
			buf.Reset()
			seedOnly = false

			windowed := slideWindow(ptext, p.start, opts)
			chunks = append(chunks, windowed...)
			if n := len(windowed); n > 0 && opts.Overlap > 0 {
				last := windowed[n-1]
				seed := last.Text
				if len(seed) > opts.Overlap {
					seed = seed[len(seed)-opts.Overlap:]
				}
				buf.WriteString(seed)
				bufStart = last.EndChar - len(seed)
				bufEnd = last.EndChar
				seedOnly = true
			}
			continue
		}

		switch {
		case buf.Len() == 0:
			buf.WriteString(ptext)
			bufStart = p.start
		case seedOnly:
			// The seed plus the first real paragraph always go together;
			// the paragraph itself fits ChunkSize, so the chunk stays
			// within ChunkSize + Overlap.
			buf.WriteString(ptext)
			seedOnly = false
		default:
			if buf.Len()+2+len(ptext) > opts.ChunkSize {
				flush()
				buf.WriteString(ptext)
				seedOnly = false
			} else {
				buf.WriteString("\n\n")
				buf.WriteString(ptext)
			}
		}
		bufEnd = p.end
	}

	// Trailing buffer: emit unless it is undersized or overlap-only.
	if !seedOnly && buf.Len() >= opts.MinChunkSize {
		chunks = append(chunks, domain.Chunk{
			Text:      buf.String(),
			StartChar: bufStart,
			EndChar:   bufEnd,
		})
	}

	return chunks
}

// slideWindow advances a ChunkSize window with step ChunkSize - Overlap.
// Windows that stop short of end-of-text are trimmed back to the last
// sentence terminator found in their final 30% to avoid mid-sentence cuts.
// base offsets all emitted spans into the enclosing document.
func slideWindow(text string, base int, opts Options) []domain.Chunk {
	var chunks []domain.Chunk

	pos := 0
	for pos < len(text) {
		end := pos + opts.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else if cut := lastSentenceEnd(text[pos:end]); cut >= 0 {
			end = pos + cut + 1
		}

		if end-pos >= opts.MinChunkSize {
			chunks = append(chunks, domain.Chunk{
				Text:      text[pos:end],
				StartChar: base + pos,
				EndChar:   base + end,
			})
		}

		if end == len(text) {
			break
		}
		next := end - opts.Overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// lastSentenceEnd returns the index of the last '.', '!' or '?' followed
// by whitespace within the final 30% of the window, or -1.
func lastSentenceEnd(window string) int {
	threshold := int(float64(len(window)) * 0.7)
	for i := len(window) - 2; i >= threshold; i-- {
		c := window[i]
		if (c == '.' || c == '!' || c == '?') && unicode.IsSpace(rune(window[i+1])) {
			return i
		}
	}
	return -1
}

// splitParagraphs returns the trimmed spans of blank-line-separated
// paragraphs, preserving their byte offsets into the original text.
func splitParagraphs(text string) []span {
	var spans []span

	parStart := -1
	parEnd := 0
	offset := 0

	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if parStart >= 0 {
				spans = append(spans, span{parStart, parEnd})
				parStart = -1
			}
		} else {
			ls := offset + strings.Index(line, trimmed)
			le := ls + len(trimmed)
			if parStart < 0 {
				parStart = ls
			}
			parEnd = le
		}
		offset += len(line)
	}
	if parStart >= 0 {
		spans = append(spans, span{parStart, parEnd})
	}

	return spans
}
