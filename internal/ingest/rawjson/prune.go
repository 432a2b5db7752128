package rawjson

// Prune reduces a raw platform payload to a whitelisted, depth-bounded shape
// before it is stored as JSONB. This is semantic pruning rather than byte
// truncation: the output always marshals to valid JSON.
//
// Rules:
//   - top-level keys outside the safe set are dropped
//   - nested objects are pruned recursively to a max depth of 2
//   - lists survive only when their first element is a primitive, truncated
//     to the first 10 elements; lists of objects become empty lists
const (
	maxNestingDepth = 2
	maxListElements = 10
)

// safeKeys is the fixed whitelist of reddit payload fields worth keeping:
// identifiers, timestamps, URLs, counts, textual and author fields, and the
// threading metadata (parent_id, link_id, depth).
var safeKeys = map[string]struct{}{
	"id":                    {},
	"name":                  {},
	"kind":                  {},
	"title":                 {},
	"selftext":              {},
	"body":                  {},
	"author":                {},
	"author_fullname":       {},
	"author_flair_text":     {},
	"subreddit":             {},
	"subreddit_id":          {},
	"permalink":             {},
	"url":                   {},
	"domain":                {},
	"score":                 {},
	"ups":                   {},
	"downs":                 {},
	"upvote_ratio":          {},
	"num_comments":          {},
	"num_crossposts":        {},
	"view_count":            {},
	"created":               {},
	"created_utc":           {},
	"edited":                {},
	"over_18":               {},
	"stickied":              {},
	"locked":                {},
	"spoiler":               {},
	"is_self":               {},
	"is_video":              {},
	"link_flair_text":       {},
	"distinguished":         {},
	"gilded":                {},
	"total_awards_received": {},
	"controversiality":      {},
	"score_hidden":          {},
	"removed_by_category":   {},
	"post_hint":             {},
	"thumbnail":             {},
	"parent_id":             {},
	"link_id":               {},
	"depth":                 {},
}

func Prune(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(raw))
	for key, val := range raw {
		if _, ok := safeKeys[key]; !ok {
			continue
		}
		out[key] = pruneValue(val, 1)
	}
	return out
}

func pruneValue(val any, depth int) any {
	switch v := val.(type) {
	case map[string]any:
		if depth >= maxNestingDepth {
			return map[string]any{}
		}
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[key] = pruneValue(inner, depth+1)
		}
		return out
	case []any:
		return pruneList(v)
	default:
		return v
	}
}

func pruneList(list []any) []any {
	if len(list) == 0 {
		return []any{}
	}
	if !isPrimitive(list[0]) {
		return []any{}
	}
	if len(list) > maxListElements {
		list = list[:maxListElements]
	}
	out := make([]any, 0, len(list))
	for _, el := range list {
		if isPrimitive(el) {
			out = append(out, el)
		}
	}
	return out
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, int, int64, float32:
		return true
	default:
		return false
	}
}
