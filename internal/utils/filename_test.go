package utils

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple filename", "file.zip", "file.zip"},
		{"filename with spaces", "  file.zip  ", "file.zip"},
		{"filename with backslash", "path\\file.zip", "file.zip"},
		{"filename with forward slash", "path/file.zip", "file.zip"},
		{"filename with colon", "file:name.zip", "file_name.zip"},
		{"filename with asterisk", "file*name.zip", "file_name.zip"},
		{"filename with question mark", "file?name.zip", "file_name.zip"},
		{"filename with quotes", "file\"name.zip", "file_name.zip"},
		{"filename with angle brackets", "file<name>.zip", "file_name_.zip"},
		{"filename with pipe", "file|name.zip", "file_name.zip"},
		{"dot only", ".", "."},
		{"multiple bad chars", "b*c?d.zip", "b_c_d.zip"},
		{"unicode filename", "文件.zip", "文件.zip"},
		{"dotfile", ".gitignore", ".gitignore"},
		{"multiple dots", "file.tar.gz", "file.tar.gz"},
		{"all spaces becomes empty after trim", "   ", ""},
		{"consecutive bad chars", "file***name.zip", "file___name.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}

func TestDetermineFilename_PriorityOrder(t *testing.T) {
	makeZipHeader := func(internalName string) []byte {
		h := make([]byte, 30+len(internalName))
		copy(h[0:4], []byte{0x50, 0x4B, 0x03, 0x04})
		h[26] = byte(len(internalName))
		copy(h[30:], internalName)
		return h
	}

	zipContent := makeZipHeader("internal_id_123.txt")
	pdfContent := []byte("%PDF-1.4\n")

	tests := []struct {
		name     string
		url      string
		headers  http.Header
		head     []byte
		expected string
	}{
		{
			name: "Content-Disposition beats all",
			url:  "https://example.com/file?filename=wrong.txt",
			headers: http.Header{
				"Content-Disposition": []string{`attachment; filename="correct.zip"`},
			},
			head:     zipContent,
			expected: "correct.zip",
		},
		{
			name:     "query param beats URL path",
			url:      "https://example.com/download.php?filename=report.pdf",
			headers:  http.Header{},
			head:     pdfContent,
			expected: "report.pdf",
		},
		{
			name:     "file query param",
			url:      "https://example.com/dl?file=data.csv",
			headers:  http.Header{},
			expected: "data.csv",
		},
		{
			name:     "URL path beats ZIP header",
			url:      "https://example.com/logs_january.zip",
			headers:  http.Header{},
			head:     zipContent,
			expected: "logs_january.zip",
		},
		{
			name:     "ZIP header used when URL is generic",
			url:      "",
			headers:  http.Header{},
			head:     zipContent,
			expected: "internal_id_123.txt",
		},
		{
			name:     "sniffing adds extension to generic name",
			url:      "https://example.com/get-file",
			headers:  http.Header{},
			head:     pdfContent,
			expected: "get-file.pdf",
		},
		{
			name:     "root path falls back",
			url:      "https://example.com/",
			headers:  http.Header{},
			head:     pdfContent,
			expected: DefaultFilename,
		},
		{
			name:     "default name when everything is missing",
			url:      "",
			headers:  http.Header{},
			head:     []byte("random data"),
			expected: DefaultFilename,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetermineFilename(tt.url, tt.headers, tt.head))
		})
	}
}

func TestUniqueFilePath(t *testing.T) {
	dir := t.TempDir()
	create := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	tests := []struct {
		name     string
		existing []string
		input    string
		want     string
	}{
		{"no conflict", nil, "a.txt", "a.txt"},
		{"partial only is not a conflict", []string{"b.txt.ferry"}, "b.txt", "b.txt"},
		{"finished file conflicts", []string{"c.txt"}, "c.txt", "c(1).txt"},
		{"counter continues", []string{"d.txt", "d(1).txt"}, "d.txt", "d(2).txt"},
		{"existing counter is bumped", []string{"e(3).txt"}, "e(3).txt", "e(4).txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, f := range tt.existing {
				create(f)
			}
			got := UniqueFilePath(filepath.Join(dir, tt.input))
			assert.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}
