// Package clipboard pulls a transfer URL out of the system clipboard
package clipboard

import (
	"errors"
	"net/url"
	"strings"

	"github.com/atotto/clipboard"
)

const maxURLLength = 2048

var ErrNoURL = errors.New("clipboard does not contain an http(s) URL")

// Validator checks and extracts transferable URLs from text
type Validator struct {
	allowedSchemes map[string]bool
}

func NewValidator() *Validator {
	return &Validator{
		allowedSchemes: map[string]bool{"http": true, "https": true},
	}
}

// ExtractURL returns the cleaned URL in text, or "" if text is not one.
// Surrounding whitespace, quotes and angle brackets are stripped.
func (v *Validator) ExtractURL(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, `"'<>`)

	if text == "" || len(text) > maxURLLength || strings.ContainsAny(text, "\n\r\t ") {
		return ""
	}

	parsed, err := url.Parse(text)
	if err != nil || parsed.Host == "" || !v.allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return ""
	}
	return parsed.String()
}

// ExtractURLs returns every valid URL in text, one candidate per line,
// without duplicates
func (v *Validator) ExtractURLs(text string) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		if u := v.ExtractURL(line); u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}

// readAll is swapped out in tests; the system clipboard is not available in CI
var readAll = clipboard.ReadAll

// ReadURL returns the first URL on the clipboard
func ReadURL() (string, error) {
	text, err := readAll()
	if err != nil {
		return "", err
	}
	urls := NewValidator().ExtractURLs(text)
	if len(urls) == 0 {
		return "", ErrNoURL
	}
	return urls[0], nil
}
