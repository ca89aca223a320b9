package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/ferry/internal/download"
	"github.com/surge-downloader/ferry/internal/tui/components"
)

const historyInterval = time.Second

type tickMsg time.Time

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(msg.Width, MaxWidth)
		m.bar.Width = max(m.width-ProgressBarWidthOffset, 10)
		m.help.Width = m.width
		return m, nil

	case tickMsg:
		m.sync()
		m.sample(time.Time(msg))
		if m.status() == components.StatusComplete {
			m.done = true
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, Keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, Keys.Toggle):
			if m.transfer.State() == download.Running {
				m.act(m.transfer.Pause)
			} else {
				m.act(m.transfer.Start)
			}
		case key.Matches(msg, Keys.Cancel):
			m.act(m.transfer.Cancel)
		}
		m.sync()
		return m, nil
	}
	return m, nil
}

func (m *Model) act(fn func() error) {
	m.notice = ""
	if err := fn(); err != nil {
		m.notice = err.Error()
	}
}

// sync copies the transfer's current state into the model
func (m *Model) sync() {
	if p, ok := m.transfer.Observer().Current(); ok {
		m.current = p
	}
	m.state = m.transfer.State()
	m.err = m.transfer.Err()
	m.topRate = max(m.topRate, m.current.Rate)
}

func (m *Model) sample(now time.Time) {
	if now.Sub(m.sampledAt) < historyInterval {
		return
	}
	m.sampledAt = now
	if len(m.history) == HistoryLength {
		copy(m.history, m.history[1:])
		m.history = m.history[:HistoryLength-1]
	}
	m.history = append(m.history, m.current.Rate)
}

func (m Model) status() components.TransferStatus {
	return components.DetermineStatus(
		m.state == download.Running,
		m.state == download.Paused,
		m.err != nil,
		m.current.Message,
	)
}
