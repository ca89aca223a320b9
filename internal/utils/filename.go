package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// DefaultFilename is used when nothing better can be derived
const DefaultFilename = "download.bin"

// DetermineFilename picks a local name for rawurl. In order of preference:
// Content-Disposition, the filename/file query parameter, the URL path, and
// for a generic path the first entry of a ZIP archive. If the result has no
// extension, one is sniffed from head.
func DetermineFilename(rawurl string, header http.Header, head []byte) string {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		Debug("Unparseable URL %q: %v", rawurl, err)
		return DefaultFilename
	}

	var candidate string

	if _, name, err := httpheader.ContentDisposition(header); err == nil && name != "" {
		candidate = name
		Debug("Filename from Content-Disposition: %s", candidate)
	}

	if candidate == "" {
		q := parsed.Query()
		if name := q.Get("filename"); name != "" {
			candidate = name
		} else if name := q.Get("file"); name != "" {
			candidate = name
		}
	}

	if candidate == "" {
		candidate = filepath.Base(parsed.Path)
	}

	filename := sanitizeFilename(candidate)

	generic := filename == "" || filename == "." || filename == "_"
	if generic {
		if name := zipEntryName(head); name != "" {
			Debug("Filename from ZIP entry: %s", name)
			filename, generic = name, false
		}
	}
	if generic {
		return DefaultFilename
	}

	if filepath.Ext(filename) == "" {
		if kind, _ := filetype.Match(head); kind != filetype.Unknown && kind.Extension != "" {
			filename = filename + "." + kind.Extension
			Debug("Added extension from magic type: %s (%s)", kind.Extension, kind.MIME.Value)
		}
	}

	return filename
}

// zipEntryName reads the name of the first local file header
func zipEntryName(head []byte) string {
	if len(head) < 30 || !bytes.HasPrefix(head, []byte{0x50, 0x4B, 0x03, 0x04}) {
		return ""
	}
	nameLen := int(binary.LittleEndian.Uint16(head[26:28]))
	end := 30 + nameLen
	if nameLen == 0 || end > len(head) {
		return ""
	}
	return sanitizeFilename(string(head[30:end]))
}

func sanitizeFilename(name string) string {
	// Backslashes become separators so filepath.Base strips Windows-style paths too
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." {
		return name
	}
	if name == "/" {
		return "_"
	}
	name = strings.TrimSpace(name)
	return strings.NewReplacer(
		"/", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	).Replace(name)
}

// UniqueFilePath returns path, or path with a "(n)" counter before the
// extension if a finished file already sits there. A partial download at
// path is not a conflict: it is what a resume continues.
func UniqueFilePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	base := name
	counter := 1
	if len(name) > 3 && name[len(name)-1] == ')' {
		if open := strings.LastIndexByte(name, '('); open != -1 {
			if num, err := strconv.Atoi(name[open+1 : len(name)-1]); err == nil && num > 0 {
				base = name[:open]
				counter = num + 1
			}
		}
	}

	for i := 0; i < 100; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", base, counter+i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return path
}
