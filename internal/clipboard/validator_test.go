package clipboard

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractURL(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain https", "https://example.com/file.zip", "https://example.com/file.zip"},
		{"whitespace", "  http://example.com/a  \n", "http://example.com/a"},
		{"quoted", `"https://example.com/q"`, "https://example.com/q"},
		{"angle brackets", "<https://example.com/b>", "https://example.com/b"},
		{"upper-case scheme", "HTTPS://example.com/u", "https://example.com/u"},
		{"ftp rejected", "ftp://example.com/f", ""},
		{"no host", "https:///path", ""},
		{"not a url", "hello world", ""},
		{"embedded space", "https://example.com/a b", ""},
		{"empty", "", ""},
		{"too long", "https://example.com/" + strings.Repeat("a", maxURLLength), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.ExtractURL(tt.in))
		})
	}
}

func TestExtractURLs(t *testing.T) {
	text := "https://a.test/1\nnot a url\n\nhttps://a.test/2\r\nhttps://a.test/1\n"
	assert.Equal(t, []string{"https://a.test/1", "https://a.test/2"}, NewValidator().ExtractURLs(text))
}

func TestReadURL(t *testing.T) {
	orig := readAll
	defer func() { readAll = orig }()

	readAll = func() (string, error) { return "see https://x.test/f\nhttps://x.test/g", nil }
	u, err := ReadURL()
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/g", u)

	readAll = func() (string, error) { return "nothing here", nil }
	_, err = ReadURL()
	assert.ErrorIs(t, err, ErrNoURL)

	boom := errors.New("no clipboard utility")
	readAll = func() (string, error) { return "", boom }
	_, err = ReadURL()
	assert.ErrorIs(t, err, boom)
}
