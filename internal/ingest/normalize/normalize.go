package normalize

import (
	"regexp"
	"strings"
)

// Result carries the cleaned text plus the moderation classification of the
// raw input. Removed/deleted inputs always come back with empty Text.
type Result struct {
	Text    string
	Removed bool
	Deleted bool
}

const CodeBlockSentinel = "[code block]"

var (
	fencedCodeRe   = regexp.MustCompile("(?s)```.*?```")
	headerRe       = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	boldRe         = regexp.MustCompile(`\*\*(.*?)\*\*`)
	boldUnderRe    = regexp.MustCompile(`__(.*?)__`)
	italicRe       = regexp.MustCompile(`\*(.*?)\*`)
	italicUnderRe  = regexp.MustCompile(`\b_(.*?)_\b`)
	strikeRe       = regexp.MustCompile(`~~(.*?)~~`)
	inlineCodeRe   = regexp.MustCompile("`([^`]*)`")
	linkRe         = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	blockquoteRe   = regexp.MustCompile(`(?m)^\s*>\s?`)
	horizontalRe   = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	tripleNewline  = regexp.MustCompile(`\n{3,}`)
	spaceRunRe     = regexp.MustCompile(`[ \t]{2,}`)
	userMentionRe  = regexp.MustCompile(`(?i)(^|[^\w/])/?u/[\w-]+`)
	emailRe        = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]*\w`)
	phoneRe        = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`)
	phoneCompactRe = regexp.MustCompile(`\+?\d{10,13}\b`)
)

// Text strips reddit-flavored markdown, masks PII, and detects the
// moderation placeholders reddit substitutes for removed or deleted content.
// The author name participates only in deleted detection.
//
// Running Text over its own output is a fixed point.
func Text(raw string, author string) Result {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "[removed]", "[removed by reddit]":
		return Result{Removed: true}
	}
	if trimmed == "[deleted]" || strings.EqualFold(strings.TrimSpace(author), "[deleted]") {
		return Result{Deleted: true}
	}

	text := stripMarkdown(raw)
	text = maskPII(text)
	return Result{Text: strings.TrimSpace(text)}
}

func stripMarkdown(text string) string {
	text = fencedCodeRe.ReplaceAllString(text, CodeBlockSentinel)
	text = dropIndentedCode(text)
	text = headerRe.ReplaceAllString(text, "")
	text = boldRe.ReplaceAllString(text, "$1")
	text = boldUnderRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = italicUnderRe.ReplaceAllString(text, "$1")
	text = strikeRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = blockquoteRe.ReplaceAllString(text, "")
	text = horizontalRe.ReplaceAllString(text, "")
	text = tripleNewline.ReplaceAllString(text, "\n\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	return text
}

func dropIndentedCode(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func maskPII(text string) string {
	text = userMentionRe.ReplaceAllString(text, "${1}[user]")
	text = emailRe.ReplaceAllString(text, "[email]")
	text = phoneRe.ReplaceAllString(text, "[phone]")
	text = phoneCompactRe.ReplaceAllString(text, "[phone]")
	return text
}

// TruncateWords caps s to n whitespace tokens, appending an ellipsis when
// anything was cut. Used for evidence snippets.
func TruncateWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) <= n {
		return s
	}
	return strings.Join(fields[:n], " ") + "..."
}
