package chunkify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gamesignal/gamesignal-backend/internal/config"
)

// Sentinels fencing scraped text inside chunks. Downstream prompts instruct
// the model to treat anything between them as untrusted content, never as
// instructions.
const (
	StartSentinel = "!!! START UNTRUSTED CONTENT !!!"
	EndSentinel   = "!!! END UNTRUSTED CONTENT !!!"
)

// Meta is the provenance header prefixed to every chunk document.
type Meta struct {
	Subreddit  string
	Score      int
	CreatedUTC time.Time
	URL        string
	Title      string
}

// Chunk is one retrieval span and its dedupe hash.
type Chunk struct {
	Text string
	Hash string
}

// Build wraps the body in the untrusted-content sentinels, prefixes the
// metadata header, and cuts the document into overlapping windows. Cut
// points prefer paragraph breaks, then line breaks, then spaces, each
// required to land past the window midpoint; otherwise a hard cut at the
// window edge, snapped to a rune boundary so multi-byte characters are
// never split. Windows shorter than MinChars after trimming are dropped.
func Build(body string, meta Meta, cfg config.ChunkConfig) []Chunk {
	doc := compose(body, meta)
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 3000
	}
	minChars := cfg.MinChars
	if minChars < 0 {
		minChars = 0
	}
	overlap := maxChars * cfg.OverlapPercent / 100
	if overlap < 0 {
		overlap = 0
	}
	stride := maxChars - overlap
	if stride <= 0 {
		stride = maxChars
	}

	var chunks []Chunk
	for start := 0; start < len(doc); {
		end := start + maxChars
		if end >= len(doc) {
			end = len(doc)
		} else {
			end = cutPoint(doc, start, floorRune(doc, end))
		}
		text := strings.TrimSpace(doc[start:end])
		if len(text) >= minChars && text != "" {
			chunks = append(chunks, Chunk{Text: text, Hash: Hash(text)})
		}
		if end == len(doc) {
			break
		}
		start = ceilRune(doc, start+stride)
	}
	return chunks
}

func compose(body string, meta Meta) string {
	var b strings.Builder
	if meta.Subreddit != "" {
		fmt.Fprintf(&b, "Subreddit: r/%s\n", meta.Subreddit)
	}
	fmt.Fprintf(&b, "Score: %d\n", meta.Score)
	fmt.Fprintf(&b, "Created: %s\n", meta.CreatedUTC.UTC().Format(time.RFC3339))
	if meta.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", meta.URL)
	}
	if meta.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", meta.Title)
	}
	b.WriteString("\n")
	b.WriteString(StartSentinel)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(EndSentinel)
	return b.String()
}

// cutPoint picks the best break inside doc[start:limit]. Each candidate must
// land past the midpoint of the window so chunks never collapse to slivers.
func cutPoint(doc string, start, limit int) int {
	window := doc[start:limit]
	mid := len(window) / 2

	if idx := strings.LastIndex(window, "\n\n"); idx > mid {
		return start + idx
	}
	if idx := strings.LastIndex(window, "\n"); idx > mid {
		return start + idx
	}
	if idx := strings.LastIndex(window, " "); idx > mid {
		return start + idx
	}
	return limit
}

// floorRune backs i up to the nearest rune start. Hard cuts land here so a
// chunk never ends mid-character.
func floorRune(doc string, i int) int {
	for i > 0 && !utf8.RuneStart(doc[i]) {
		i--
	}
	return i
}

// ceilRune advances i to the next rune start. Window starts land here, and
// forward movement keeps the walk terminating even when the stride falls
// inside a multi-byte character.
func ceilRune(doc string, i int) int {
	for i < len(doc) && !utf8.RuneStart(doc[i]) {
		i++
	}
	return i
}

// Hash is sha256 over the final chunk text, hex-encoded. The store treats it
// as the chunk's identity: inserting a seen hash is a no-op.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
