// Package fitui provides the Bubble Tea browser for stored sweeps.
package fitui

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/omorifit/internal/model"
	"github.com/verte-zerg/omorifit/internal/store"
	"github.com/verte-zerg/omorifit/internal/sweep"
)

const (
	viewList = iota
	viewDetail
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	tableStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea sweep browser.
type Model struct {
	store *store.Store

	sweeps []model.SweepSummary
	table  table.Model
	detail viewport.Model
	view   int

	confirmDelete bool
	errMsg        string

	width  int
	height int
}

// NewModel constructs the browser and loads the sweep list.
func NewModel(st *store.Store) *Model {
	m := &Model{
		store:  st,
		table:  newSweepTable(),
		detail: viewport.New(0, 0),
	}
	m.table.Focus()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		if m.view == viewDetail {
			m.openDetail()
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		if m.confirmDelete {
			return m.updateConfirm(msg)
		}
		if m.view == viewDetail {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if len(m.sweeps) > 0 {
			m.view = viewDetail
			m.openDetail()
		}
		return m, nil
	case "d":
		if len(m.sweeps) > 0 {
			m.confirmDelete = true
		}
		return m, nil
	case "r":
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "d":
		m.confirmDelete = true
		return m, nil
	case "g", "home":
		m.detail.GotoTop()
		return m, nil
	case "G", "end":
		m.detail.GotoBottom()
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmDelete = false
	if msg.String() != "y" {
		return m, nil
	}
	sel, ok := m.selected()
	if !ok {
		return m, nil
	}
	if err := m.store.DeleteSweep(context.Background(), sel.ID); err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	m.view = viewList
	m.refresh()
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = max(lipgloss.Height(titleStyle.Render("X")), 1)
	footerHeight = 1
	if m.errMsg != "" || m.confirmDelete {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.table.SetWidth(m.width)
	m.table.SetHeight(max(bodyHeight-1, 1))
	m.detail.Width = m.width
	m.detail.Height = bodyHeight
}

func (m *Model) renderHeader() string {
	title := "Sweeps"
	if m.view == viewDetail {
		if sel, ok := m.selected(); ok {
			title = fmt.Sprintf("Sweep #%d %s", sel.ID, sel.Name)
		}
	}
	return titleStyle.Render(truncateLine(title, max(m.width-4, 1)))
}

func (m *Model) renderBody() string {
	if m.view == viewDetail {
		return m.detail.View()
	}
	if len(m.sweeps) == 0 {
		return "No sweeps stored. Run: omorifit sweep --save"
	}
	return tableStyle.Render(m.table.View())
}

func (m *Model) renderFooter() string {
	help := "Move: up/down  Open: enter  Delete: d  Refresh: r  Quit: q"
	if m.view == viewDetail {
		help = "Scroll: up/down/pgup/pgdn  Top/bottom: g/G  Back: esc  Delete: d  Quit: q"
	}
	lines := []string{headerStyle.Render(help)}
	switch {
	case m.confirmDelete:
		sel, _ := m.selected()
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Delete sweep #%d %q? (y/n)", sel.ID, sel.Name)))
	case m.errMsg != "":
		lines = append(lines, errorStyle.Render(m.errMsg))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) refresh() {
	sweeps, err := m.store.ListSweeps(context.Background())
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
	m.sweeps = sweeps
	m.table.SetRows(sweepRows(sweeps))
	if c := m.table.Cursor(); c >= len(sweeps) {
		m.table.SetCursor(max(len(sweeps)-1, 0))
	}
}

func (m *Model) selected() (model.SweepSummary, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.sweeps) {
		return model.SweepSummary{}, false
	}
	return m.sweeps[c], true
}

func (m *Model) openDetail() {
	sel, ok := m.selected()
	if !ok {
		return
	}
	stored, err := sweep.Load(context.Background(), m.store, sel.ID)
	if err != nil {
		m.errMsg = err.Error()
		m.detail.SetContent("Failed to load sweep.")
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	var buf bytes.Buffer
	if err := sweep.RenderReport(&buf, stored.Summary, stored.Points, sweep.ReportOptions{Width: width, Plots: true, Color: true}); err != nil {
		m.detail.SetContent(fmt.Sprintf("Failed to render sweep: %v", err))
		return
	}
	m.detail.SetContent(strings.TrimRight(buf.String(), "\n"))
	m.detail.GotoTop()
}

func newSweepTable() table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 5},
		{Title: "Name", Width: 16},
		{Title: "Created", Width: 16},
		{Title: "Events", Width: 7},
		{Title: "Points", Width: 8},
		{Title: "Best loglike", Width: 14},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(1),
	)
	t.SetStyles(sweepTableStyles())
	return t
}

func sweepRows(sweeps []model.SweepSummary) []table.Row {
	rows := make([]table.Row, 0, len(sweeps))
	for _, s := range sweeps {
		best := "-"
		if s.Points > s.NonFinite {
			best = fmt.Sprintf("%.4f", s.Best.LogLike)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", s.ID),
			s.Name,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", s.Events),
			fmt.Sprintf("%d", s.Points),
			best,
		})
	}
	return rows
}

func sweepTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
