// Package picker implements the interactive command picker.
package picker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/runger/shellmark/internal/search"
)

// DefaultDebounce is the delay after the last keystroke before a fetch.
const DefaultDebounce = 150 * time.Millisecond

type pickerState int

const (
	stateIdle      pickerState = iota // Initial state before first fetch
	stateLoading                      // Fetch in progress
	stateLoaded                       // Items loaded successfully (len > 0)
	stateEmpty                        // Fetch succeeded but returned 0 items
	stateError                        // Fetch failed
	stateCancelled                    // User cancelled (Esc / Ctrl+C)
)

// fetchDoneMsg is sent when an async Provider.Fetch completes.
type fetchDoneMsg struct {
	requestID uint64
	items     []Item
	err       error
}

// debounceMsg fires after the debounce timer expires.
type debounceMsg struct {
	id uint64
}

// initMsg triggers the first fetch through Update.
type initMsg struct{}

// Options configures a Model.
type Options struct {
	// Modes are the tabs, in order. Empty uses every search mode.
	Modes []search.Mode

	// Mode is the initially active tab.
	Mode search.Mode

	// Query is the initial query.
	Query string

	// Debounce delays fetches while typing (default: DefaultDebounce).
	Debounce time.Duration
}

// Model is the Bubble Tea model of the picker. Each tab searches with one
// search mode.
type Model struct {
	state     pickerState
	modes     []search.Mode
	activeTab int
	items     []Item
	selection int // Index into items; -1 when empty
	query     string
	err       error

	requestID uint64
	provider  Provider
	debounce  time.Duration

	width  int
	height int

	spinner spinner.Model

	result *Item

	// cancelFetch cancels the in-flight Provider.Fetch context.
	cancelFetch context.CancelFunc

	// debounceID tracks the latest debounce timer; only a matching
	// debounceMsg triggers a fetch.
	debounceID uint64
}

// NewModel creates a picker reading from provider.
func NewModel(provider Provider, opts Options) Model {
	modes := opts.Modes
	if len(modes) == 0 {
		modes = search.Modes
	}
	active := 0
	for i, m := range modes {
		if m == opts.Mode {
			active = i
		}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = dimStyle

	return Model{
		state:     stateIdle,
		modes:     modes,
		activeTab: active,
		selection: -1,
		query:     opts.Query,
		provider:  provider,
		debounce:  debounce,
		spinner:   s,
	}
}

// Result returns the selected item, or false if nothing was picked.
func (m Model) Result() (Item, bool) {
	if m.result == nil {
		return Item{}, false
	}
	return *m.result, true
}

// IsCancelled reports whether the user dismissed the picker.
func (m Model) IsCancelled() bool {
	return m.state == stateCancelled
}

// Mode returns the search mode of the active tab.
func (m Model) Mode() search.Mode {
	return m.modes[m.activeTab]
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return initMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case fetchDoneMsg:
		return m.handleFetchDone(msg)

	case debounceMsg:
		if msg.id != m.debounceID {
			return m, nil
		}
		return m, m.startFetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case initMsg:
		return m, m.startFetch()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.state = stateCancelled
		m.cancelInflight()
		return m, tea.Quit

	case tea.KeyEnter:
		if m.state == stateLoading {
			return m, nil
		}
		if m.selection >= 0 && m.selection < len(m.items) {
			item := m.items[m.selection]
			m.result = &item
		}
		m.cancelInflight()
		return m, tea.Quit

	case tea.KeyUp, tea.KeyCtrlP:
		if m.selection > 0 {
			m.selection--
		}
		return m, nil

	case tea.KeyDown, tea.KeyCtrlN:
		if m.selection < len(m.items)-1 {
			m.selection++
		}
		return m, nil

	case tea.KeyTab, tea.KeyShiftTab:
		if len(m.modes) < 2 {
			return m, nil
		}
		step := 1
		if msg.Type == tea.KeyShiftTab {
			step = len(m.modes) - 1
		}
		m.activeTab = (m.activeTab + step) % len(m.modes)
		return m, m.startFetch()

	case tea.KeyBackspace:
		if m.query == "" {
			return m, nil
		}
		runes := []rune(m.query)
		m.query = string(runes[:len(runes)-1])
		return m, m.startDebounce()

	case tea.KeyCtrlU:
		if m.query == "" {
			return m, nil
		}
		m.query = ""
		return m, m.startDebounce()

	case tea.KeySpace:
		m.query += " "
		return m, m.startDebounce()

	case tea.KeyRunes:
		m.query += string(msg.Runes)
		return m, m.startDebounce()
	}

	return m, nil
}

func (m Model) handleFetchDone(msg fetchDoneMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.requestID {
		return m, nil
	}
	m.cancelInflight()

	if msg.err != nil {
		m.state = stateError
		m.err = msg.err
		m.items = nil
		m.selection = -1
		return m, nil
	}

	m.err = nil
	m.items = msg.items
	if len(m.items) == 0 {
		m.state = stateEmpty
		m.selection = -1
		return m, nil
	}
	m.state = stateLoaded
	m.selection = 0
	return m, nil
}

func (m *Model) startDebounce() tea.Cmd {
	m.debounceID++
	id := m.debounceID
	return tea.Tick(m.debounce, func(time.Time) tea.Msg {
		return debounceMsg{id: id}
	})
}

// startFetch cancels any in-flight fetch and returns a command querying the
// provider under a new request ID.
func (m *Model) startFetch() tea.Cmd {
	m.cancelInflight()
	m.requestID++
	m.state = stateLoading

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFetch = cancel

	req := Request{
		RequestID: m.requestID,
		Query:     m.query,
		Mode:      m.Mode(),
	}
	p := m.provider
	return func() tea.Msg {
		resp, err := p.Fetch(ctx, req)
		if err != nil {
			return fetchDoneMsg{requestID: req.RequestID, err: err}
		}
		return fetchDoneMsg{requestID: req.RequestID, items: resp.Items}
	}
}

func (m *Model) cancelInflight() {
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
}

// listHeight returns the number of visible list rows.
func (m Model) listHeight() int {
	// tab bar, query line, status line
	const chrome = 3
	h := m.height - chrome
	if h < 1 {
		h = 20
	}
	return h
}

// visibleRange returns the window of items that keeps the selection on screen.
func (m Model) visibleRange() (int, int) {
	h := m.listHeight()
	start := 0
	if m.selection >= h {
		start = m.selection - h + 1
	}
	end := start + h
	if end > len(m.items) {
		end = len(m.items)
	}
	return start, end
}

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	matchStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	queryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	workspaceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("71"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewTabBar())
	b.WriteRune('\n')
	b.WriteString(m.viewContent())
	b.WriteRune('\n')
	b.WriteString(m.viewStatus())
	b.WriteRune('\n')
	b.WriteString(queryStyle.Render("> ") + m.query)
	return b.String()
}

func (m Model) viewTabBar() string {
	parts := make([]string, len(m.modes))
	for i, mode := range m.modes {
		label := " " + mode.String() + " "
		if i == m.activeTab {
			parts[i] = activeTabStyle.Render(label)
		} else {
			parts[i] = inactiveTabStyle.Render(label)
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) viewContent() string {
	switch m.state {
	case stateIdle, stateLoading:
		if len(m.items) > 0 {
			return m.viewList()
		}
		return m.spinner.View() + dimStyle.Render(" Searching...")
	case stateEmpty:
		return dimStyle.Render("No matches")
	case stateError:
		msg := "Error"
		if m.err != nil {
			msg = fmt.Sprintf("Error: %s", m.err)
		}
		return errorStyle.Render(msg)
	case stateCancelled:
		return dimStyle.Render("Cancelled")
	case stateLoaded:
		return m.viewList()
	default:
		return ""
	}
}

func (m Model) viewStatus() string {
	if m.state == stateLoaded || (m.state == stateLoading && len(m.items) > 0) {
		return dimStyle.Render(fmt.Sprintf("%d/%d", m.selection+1, len(m.items)))
	}
	return ""
}

func (m Model) viewList() string {
	start, end := m.visibleRange()
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.renderItem(m.items[i], i == m.selection))
	}
	return strings.Join(lines, "\n")
}

// renderItem draws one row: a selection marker, the command with matched
// characters highlighted and, space permitting, the alias and description.
func (m Model) renderItem(item Item, selected bool) string {
	base := normalStyle
	marker := "  "
	if selected {
		base = selectedStyle
		marker = "> "
	}

	width := m.width - runewidth.StringWidth(marker)
	if width <= 0 {
		width = 80
	}
	cmd := MiddleTruncate(displayText(item.Cmd), width)

	var b strings.Builder
	b.WriteString(base.Render(marker))
	if item.Workspace {
		b.WriteString(workspaceStyle.Render("◆ "))
		width -= 2
	}
	b.WriteString(highlight(cmd, m.query, base))

	rest := width - runewidth.StringWidth(cmd)
	var extra string
	if item.Alias != "" {
		extra = " [" + item.Alias + "]"
	}
	if item.Description != "" {
		extra += "  # " + displayText(item.Description)
	}
	if extra != "" && rest > 4 {
		b.WriteString(dimStyle.Render(runewidth.Truncate(extra, rest, "…")))
	}
	return b.String()
}

// highlight renders text with the characters fuzzily matched by query in
// matchStyle and the rest in base.
func highlight(text, query string, base lipgloss.Style) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return base.Render(text)
	}
	matches := fuzzy.Find(strings.ReplaceAll(query, " ", ""), []string{text})
	if len(matches) == 0 {
		return base.Render(text)
	}

	matched := make(map[int]bool, len(matches[0].MatchedIndexes))
	for _, idx := range matches[0].MatchedIndexes {
		matched[idx] = true
	}

	var b, run strings.Builder
	runMatched := false
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if runMatched {
			b.WriteString(matchStyle.Render(run.String()))
		} else {
			b.WriteString(base.Render(run.String()))
		}
		run.Reset()
	}
	for i, r := range text {
		if matched[i] != runMatched {
			flush()
			runMatched = matched[i]
		}
		run.WriteRune(r)
	}
	flush()
	return b.String()
}
