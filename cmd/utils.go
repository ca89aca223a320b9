package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/surge-downloader/ferry/internal/config"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/utils"
)

// errNoServer means no port file was found
var errNoServer = errors.New("no running ferry server (start one with 'ferry server')")

var apiClient = &http.Client{Timeout: 30 * time.Second}

func portFilePath() string {
	return filepath.Join(config.GetFerryDir(), "port")
}

// readActivePort returns the port the running server listens on, or 0
func readActivePort() int {
	data, err := os.ReadFile(portFilePath())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return port
}

func saveActivePort(port int) error {
	utils.Debug("HTTP server listening on port %d", port)
	return os.WriteFile(portFilePath(), []byte(strconv.Itoa(port)), 0644)
}

func removeActivePort() {
	_ = os.Remove(portFilePath())
}

// findAvailablePort tries ports starting from start until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// readURLsFromFile reads URLs from a file, one per line. Blank lines and
// lines starting with # are skipped.
func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs found in %s", path)
	}
	return urls, nil
}

func serverURL(port int, path string, query url.Values) string {
	u := url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port), Path: path}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// decodeResponse reads a JSON body into out, or turns a non-2xx reply into an error
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid server response: %w", err)
	}
	return nil
}

// sendToServer asks the server at port to add url and returns the session ID
func sendToServer(rawurl, outPath string, port int) (string, error) {
	data, err := json.Marshal(DownloadRequest{URL: rawurl, Path: outPath})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := apiClient.Post(serverURL(port, "/download", nil), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to connect to server: %w", err)
	}

	var out actionResponse
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// postAction sends one of pause, resume, cancel or delete for id
func postAction(port int, action, id string) error {
	resp, err := apiClient.Post(serverURL(port, "/"+action, url.Values{"id": {id}}), "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	return decodeResponse(resp, nil)
}

// requirePort returns the running server's port or errNoServer
func requirePort() (int, error) {
	port := readActivePort()
	if port <= 0 {
		return 0, errNoServer
	}
	return port, nil
}

// resolveDownloadID expands a unique ID prefix using the session store.
// An ID the store does not know is passed through for the server to judge.
func resolveDownloadID(prefix string) (string, error) {
	sessions, err := state.ListSessions()
	if err != nil {
		return prefix, nil
	}
	var matches []string
	for _, s := range sessions {
		if s.ID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return prefix, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous ID prefix %q matches %d downloads", prefix, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
