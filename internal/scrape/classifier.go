package scrape

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultProxyFailureTokens matches the error text signatures of a dead or
// blocked proxy, as opposed to a genuine scrape bug. The TikTok "something
// went wrong" interstitial is served to flagged exit IPs.
var defaultProxyFailureTokens = []string{
	"timeout",
	"timed out",
	"aborted",
	"context was destroyed",
	"target closed",
	"proxy",
	"net::err",
	"page crashed",
	"navigation failed",
	"connection refused",
	"connection reset",
	"something went wrong",
}

// Classifier decides whether a scrape failure should burn the current proxy
// or abort the hashtag.
type Classifier struct {
	tokens []string
}

func NewClassifier() *Classifier {
	return &Classifier{tokens: defaultProxyFailureTokens}
}

type classifierFile struct {
	ProxyFailureTokens []string `yaml:"proxy_failure_tokens"`
}

// LoadClassifier reads a YAML token list, falling back to the defaults when
// path is empty. An explicit file fully replaces the default set.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return NewClassifier(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier file: %w", err)
	}
	var parsed classifierFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse classifier file: %w", err)
	}
	if len(parsed.ProxyFailureTokens) == 0 {
		return NewClassifier(), nil
	}
	tokens := make([]string, 0, len(parsed.ProxyFailureTokens))
	for _, tok := range parsed.ProxyFailureTokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return &Classifier{tokens: tokens}, nil
}

// IsProxyFailure reports whether the error text carries any failure token.
// A nil error is not a proxy failure; callers handle the separate
// empty-result-means-proxy-failure rule themselves.
func (c *Classifier) IsProxyFailure(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, tok := range c.tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
