// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticketui implements the dispatch watch terminal UI: a
// self-refreshing table of tickets with their status, turn counter,
// and whether an agent window is currently running.
//
// The UI follows the bubbletea Elm loop. Ticket data comes through
// the Source interface so tests drive the model with a fixture
// instead of a live dispatcher.
package ticketui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Row is one ticket line in the watch table.
type Row struct {
	Slug   string
	Status string
	Owner  string
	Turn   int
	// Window is true while a tmux window is running for the slug.
	Window bool
}

// Source supplies the current ticket rows on each refresh.
type Source interface {
	Rows() ([]Row, error)
}

// refreshMsg drives the periodic reload.
type refreshMsg struct{}

// rowsMsg carries the result of a reload.
type rowsMsg struct {
	rows []Row
	err  error
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model for the watch view.
type Model struct {
	source   Source
	interval time.Duration
	table    table.Model
	rows     []Row
	err      error
	updated  time.Time
}

// New builds a watch model that reloads from source at the given
// interval.
func New(source Source, interval time.Duration) Model {
	columns := []table.Column{
		{Title: "SLUG", Width: 28},
		{Title: "STATUS", Width: 10},
		{Title: "OWNER", Width: 14},
		{Title: "TURN", Width: 6},
		{Title: "WINDOW", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(16),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true)
	t.SetStyles(styles)
	return Model{source: source, interval: interval, table: t}
}

// Init schedules the first load.
func (m Model) Init() tea.Cmd {
	return m.reload
}

// reload fetches rows from the source.
func (m Model) reload() tea.Msg {
	rows, err := m.source.Rows()
	return rowsMsg{rows: rows, err: err}
}

// tick schedules the next refresh.
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// Update handles key input and refresh messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.reload
		}
	case refreshMsg:
		return m, m.reload
	case rowsMsg:
		m.rows = msg.rows
		m.err = msg.err
		if msg.err == nil {
			m.updated = time.Now()
			m.table.SetRows(tableRows(msg.rows))
		}
		return m, m.tick()
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-4, 3))
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the table with a title and footer line.
func (m Model) View() string {
	view := headerStyle.Render("dispatch tickets") + "\n"
	view += m.table.View() + "\n"
	if m.err != nil {
		view += errorStyle.Render(fmt.Sprintf("load error: %v", m.err)) + "\n"
	}
	active := 0
	for _, row := range m.rows {
		if row.Window {
			active++
		}
	}
	footer := fmt.Sprintf("%d tickets, %s running", len(m.rows),
		activeStyle.Render(strconv.Itoa(active)))
	if !m.updated.IsZero() {
		footer += "  updated " + m.updated.Format("15:04:05")
	}
	footer += "  (r refresh, q quit)"
	return view + footerStyle.Render(footer)
}

// Rows returns the most recently loaded rows.
func (m Model) Rows() []Row {
	return m.rows
}

func tableRows(rows []Row) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		window := ""
		if row.Window {
			window = "live"
		}
		out = append(out, table.Row{
			row.Slug,
			row.Status,
			row.Owner,
			strconv.Itoa(row.Turn),
			window,
		})
	}
	return out
}

// Run starts the watch UI and blocks until the user quits.
func Run(source Source, interval time.Duration) error {
	program := tea.NewProgram(New(source, interval), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
