package normalize

import (
	"strings"
	"testing"
)

func TestTextStripsMarkdown(t *testing.T) {
	raw := "# Launch tips\n\n**Use wishlists.** Check [this guide](https://example.com/guide) and *post often*.\n\n```python\nprint('hi')\n```\n\n> quoted advice\n\n---\n\nDone."
	res := Text(raw, "someone")
	if res.Removed || res.Deleted {
		t.Fatalf("unexpected removed/deleted flags: %+v", res)
	}
	for _, banned := range []string{"**", "```", "](", "# ", "> ", "---"} {
		if strings.Contains(res.Text, banned) {
			t.Fatalf("markdown %q survived: %q", banned, res.Text)
		}
	}
	if !strings.Contains(res.Text, "Use wishlists.") {
		t.Fatalf("visible text lost: %q", res.Text)
	}
	if !strings.Contains(res.Text, "this guide") {
		t.Fatalf("link text lost: %q", res.Text)
	}
	if !strings.Contains(res.Text, CodeBlockSentinel) {
		t.Fatalf("code block not replaced with sentinel: %q", res.Text)
	}
}

func TestTextDropsIndentedCode(t *testing.T) {
	raw := "Before\n\n    x = compute()\n\ty = more()\nAfter"
	res := Text(raw, "")
	if strings.Contains(res.Text, "compute") || strings.Contains(res.Text, "more()") {
		t.Fatalf("indented code survived: %q", res.Text)
	}
}

func TestTextMasksPII(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ban  string
	}{
		{"user mention", "thanks u/helpful_dev for the tip", "[user]", "helpful_dev"},
		{"slash user mention", "credit to /u/some-artist here", "[user]", "some-artist"},
		{"email", "mail me at dev@studio.io for a key", "[email]", "dev@studio.io"},
		{"phone dashes", "call 555-123-4567 anytime", "[phone]", "555-123-4567"},
		{"phone dots", "or 555.123.4567 works", "[phone]", "555.123.4567"},
		{"phone country code", "intl +1 555 123 4567 line", "[phone]", "123 4567"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Text(tc.raw, "")
			if !strings.Contains(res.Text, tc.want) {
				t.Fatalf("expected %q in %q", tc.want, res.Text)
			}
			if strings.Contains(res.Text, tc.ban) {
				t.Fatalf("PII %q survived in %q", tc.ban, res.Text)
			}
		})
	}
}

func TestTextKeepsSubredditReferences(t *testing.T) {
	// r/ links are public context, not PII; only u/ mentions are masked.
	res := Text("Post on r/IndieDev.", "")
	if !strings.Contains(res.Text, "r/IndieDev") {
		t.Fatalf("subreddit reference mangled: %q", res.Text)
	}
}

func TestTextRemovalDetection(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		author  string
		removed bool
		deleted bool
	}{
		{"removed", "[removed]", "someone", true, false},
		{"removed by reddit", " [Removed by Reddit] ", "someone", true, false},
		{"deleted body", "[deleted]", "someone", false, true},
		{"deleted author", "still here", "[deleted]", false, true},
		{"plain", "still here", "someone", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Text(tc.raw, tc.author)
			if res.Removed != tc.removed || res.Deleted != tc.deleted {
				t.Fatalf("got removed=%v deleted=%v, want removed=%v deleted=%v",
					res.Removed, res.Deleted, tc.removed, tc.deleted)
			}
			if (tc.removed || tc.deleted) && res.Text != "" {
				t.Fatalf("moderated content must normalize to empty, got %q", res.Text)
			}
		})
	}
}

func TestTextIdempotent(t *testing.T) {
	inputs := []string{
		"# Title\n\n**bold** and `code` plus u/someone and dev@studio.io",
		"plain text, nothing to do",
		"```go\nfunc main() {}\n```\n\nafter the fence",
		"numbers 555-123-4567 and [a link](http://x.y)",
		"deep\n\n\n\n\nnewlines   and   spaces",
	}
	for _, in := range inputs {
		once := Text(in, "author")
		twice := Text(once.Text, "author")
		if twice.Text != once.Text {
			t.Fatalf("not idempotent:\n once=%q\ntwice=%q", once.Text, twice.Text)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"one two three", 5, "one two three"},
		{"one two three", 3, "one two three"},
		{"one two three four", 2, "one two..."},
		{"", 4, ""},
		{"word", 0, ""},
	}
	for _, tc := range tests {
		if got := TruncateWords(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncateWords(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
