package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/surge-downloader/ferry/internal/config"
)

// logSink opens its file on the first write, so commands that never log
// do not leave empty files behind.
type logSink struct {
	mu     sync.Mutex
	dir    string
	file   *os.File
	failed bool
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil && !s.failed {
		dir := s.dir
		if dir == "" {
			dir = config.GetLogsDir()
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.failed = true
			return len(p), nil
		}
		name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			s.failed = true
			return len(p), nil
		}
		s.file = f
	}
	if s.file == nil {
		return len(p), nil
	}
	return s.file.Write(p)
}

func (s *logSink) reset(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.dir = dir
	s.failed = false
}

func (s *logSink) directory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return config.GetLogsDir()
	}
	return s.dir
}

var (
	sink    = &logSink{}
	baseLog = zerolog.New(sink).With().Timestamp().Logger()
)

// ConfigureDebug points the debug log at dir. The file is created lazily.
func ConfigureDebug(dir string) {
	sink.reset(dir)
}

// SetVerbose toggles debug-level output
func SetVerbose(verbose bool) {
	if verbose {
		baseLog = baseLog.Level(zerolog.DebugLevel)
	} else {
		baseLog = baseLog.Level(zerolog.InfoLevel)
	}
}

// Debug writes a formatted line to the debug log
func Debug(format string, args ...any) {
	baseLog.Debug().Msgf(format, args...)
}

// Logger returns a structured logger tagged with component
func Logger(component string) zerolog.Logger {
	return baseLog.With().Str("component", component).Logger()
}

// CleanupLogs keeps the newest keep debug logs and deletes the rest
func CleanupLogs(keep int) {
	dir := sink.directory()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "debug-") && strings.HasSuffix(e.Name(), ".log") {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) <= keep {
		return
	}

	// Timestamped names sort chronologically
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-keep] {
		os.Remove(filepath.Join(dir, name))
	}
}
