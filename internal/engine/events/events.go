// Package events carries session lifecycle notifications from the download
// manager to whoever is listening (the server's websocket, the CLI).
package events

import (
	"sync"
	"time"
)

// ProgressMsg is a progress snapshot of one session
type ProgressMsg struct {
	DownloadID string        `json:"id"`
	Downloaded uint64        `json:"downloaded"`
	Total      int64         `json:"total"` // -1 when unknown
	Speed      uint64        `json:"speed"` // bytes per second
	TimeLeft   time.Duration `json:"time_left"`
	Message    string        `json:"message"`
}

// DownloadStartedMsg is sent when a session is added
type DownloadStartedMsg struct {
	DownloadID string `json:"id"`
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	DestPath   string `json:"dest_path"` // Full path to the destination file
}

// DownloadCompleteMsg signals that the download finished successfully
type DownloadCompleteMsg struct {
	DownloadID string        `json:"id"`
	Filename   string        `json:"filename"`
	Elapsed    time.Duration `json:"elapsed"`
	Total      uint64        `json:"total"`
}

// DownloadErrorMsg signals that an error occurred
type DownloadErrorMsg struct {
	DownloadID string `json:"id"`
	Err        string `json:"error"`
}

type DownloadPausedMsg struct {
	DownloadID   string `json:"id"`
	ResumeOffset uint64 `json:"resume_offset"`
}

type DownloadResumedMsg struct {
	DownloadID string `json:"id"`
}

type DownloadCancelledMsg struct {
	DownloadID string `json:"id"`
}

type DownloadRemovedMsg struct {
	DownloadID string `json:"id"`
}

// Envelope tags a message with its kind for JSON consumers
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Wrap puts msg in an Envelope. Unknown types get "unknown".
func Wrap(msg any) Envelope {
	var kind string
	switch msg.(type) {
	case ProgressMsg:
		kind = "progress"
	case DownloadStartedMsg:
		kind = "started"
	case DownloadCompleteMsg:
		kind = "complete"
	case DownloadErrorMsg:
		kind = "error"
	case DownloadPausedMsg:
		kind = "paused"
	case DownloadResumedMsg:
		kind = "resumed"
	case DownloadCancelledMsg:
		kind = "cancelled"
	case DownloadRemovedMsg:
		kind = "removed"
	default:
		kind = "unknown"
	}
	return Envelope{Type: kind, Data: msg}
}

// DownloadID returns the session msg is about, or "" for foreign types
func DownloadID(msg any) string {
	switch m := msg.(type) {
	case ProgressMsg:
		return m.DownloadID
	case DownloadStartedMsg:
		return m.DownloadID
	case DownloadCompleteMsg:
		return m.DownloadID
	case DownloadErrorMsg:
		return m.DownloadID
	case DownloadPausedMsg:
		return m.DownloadID
	case DownloadResumedMsg:
		return m.DownloadID
	case DownloadCancelledMsg:
		return m.DownloadID
	case DownloadRemovedMsg:
		return m.DownloadID
	}
	return ""
}

// Bus fans messages out to subscribers. A subscriber whose buffer is full
// misses messages rather than stalling the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan any
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan any)}
}

func (b *Bus) Publish(msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe returns a channel with room for buffer messages and a func
// that unsubscribes and closes it
func (b *Bus) Subscribe(buffer int) (<-chan any, func()) {
	ch := make(chan any, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
