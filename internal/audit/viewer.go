package audit

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobalert/internal/model"
)

// Lines per posting in the list view (title + subtitle + blank separator).
const postingItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39"))

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle   = headerStyle.Foreground(lipgloss.Color("39"))
	inactiveHeaderStyle = headerStyle.Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle            = lipgloss.NewStyle().Bold(true)
	subtitleStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24"))
	selectedSubtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	bodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	keywordsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

// CompanyFailure records a company whose page could not be previewed.
type CompanyFailure struct {
	Company string
	Err     error
}

// Preview is the outcome of a discovery run for one alert that persists nothing.
type Preview struct {
	Alert    model.JobAlert
	All      []model.RawPosting // every posting the strategies extracted
	Matched  []model.RawPosting // postings that pass the alert's keyword filter
	Failures []CompanyFailure
}

// pane is one scrollable column of postings.
type pane struct {
	title    string
	postings []model.RawPosting
	vp       viewport.Model
	cursor   int
}

func (p *pane) move(delta int) {
	p.cursor = clamp(p.cursor+delta, 0, max(len(p.postings)-1, 0))

	top := p.cursor * postingItemHeight
	bottom := top + postingItemHeight - 1
	switch {
	case top < p.vp.YOffset:
		p.vp.SetYOffset(top)
	case bottom >= p.vp.YOffset+p.vp.Height:
		p.vp.SetYOffset(bottom - p.vp.Height + 1)
	}
}

func (p *pane) resize(width, height int) {
	p.vp.Width = width
	p.vp.Height = height
}

func (p *pane) render(focused bool) {
	p.vp.SetContent(renderPostings(p.postings, p.cursor, focused))
}

func (p pane) selected() (model.RawPosting, bool) {
	if len(p.postings) == 0 {
		return model.RawPosting{}, false
	}
	return p.postings[p.cursor], true
}

func (p pane) view(focused bool) (header, body string) {
	hs, bs := inactiveHeaderStyle, inactiveBorderStyle
	if focused {
		hs, bs = activeHeaderStyle, activeBorderStyle
	}
	width := p.vp.Width
	header = lipgloss.NewStyle().Width(width + 2).Render(hs.Render(fmt.Sprintf(" %s (%d)", p.title, len(p.postings))))
	return header, bs.Width(width).Render(p.vp.View())
}

type viewerModel struct {
	preview Preview
	panes   [2]pane // extracted, keyword matches
	focus   int
	width   int
	height  int
	ready   bool

	view           viewState
	detail         model.RawPosting
	detailViewport viewport.Model

	wantQuit bool
}

func newViewerModel(p Preview) viewerModel {
	sortByPostedAt(p.All)
	sortByPostedAt(p.Matched)
	return viewerModel{
		preview: p,
		panes: [2]pane{
			{title: "Extracted", postings: p.All},
			{title: "Keyword matches", postings: p.Matched},
		},
	}
}

func (m viewerModel) Init() tea.Cmd {
	return nil
}

func (m viewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}
	return m, nil
}

func (m viewerModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		return m, tea.Quit
	case "tab", "left", "right":
		m.focus = 1 - m.focus
		m.refresh()
		return m, nil
	case "up", "k":
		m.panes[m.focus].move(-1)
		m.refresh()
		return m, nil
	case "down", "j":
		m.panes[m.focus].move(1)
		m.refresh()
		return m, nil
	case "enter":
		posting, ok := m.panes[m.focus].selected()
		if !ok {
			return m, nil
		}
		m.view = viewDetail
		m.detail = posting
		m.detailViewport = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil
	}

	// pgup/pgdn/home/end scroll the focused pane.
	var cmd tea.Cmd
	m.panes[m.focus].vp, cmd = m.panes[m.focus].vp.Update(msg)
	return m, cmd
}

func (m viewerModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		openURL(m.detail.URL)
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

// layout sizes both panes to the window: two bordered columns with a one-cell
// gap, under a header row and above the status bar.
func (m *viewerModel) layout() {
	width := max((m.width-5)/2, 20)
	height := max(m.height-4, 5)
	for i := range m.panes {
		if !m.ready {
			m.panes[i].vp = viewport.New(width, height)
		} else {
			m.panes[i].resize(width, height)
		}
	}
	m.ready = true
	m.refresh()
}

func (m *viewerModel) refresh() {
	for i := range m.panes {
		m.panes[i].render(i == m.focus)
	}
}

func (m viewerModel) View() string {
	switch {
	case !m.ready:
		return "Initializing..."
	case m.view == viewDetail:
		return m.viewDetail()
	}

	lh, lb := m.panes[0].view(m.focus == 0)
	rh, rb := m.panes[1].view(m.focus == 1)
	status := fmt.Sprintf(" keywords: %s | %d failed    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		strings.Join(m.preview.Alert.Words(), ", "), len(m.preview.Failures))

	return lipgloss.JoinHorizontal(lipgloss.Top, lh, " ", rh) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, lb, " ", rb) + "\n" +
		statusBarStyle.Width(m.width).Render(status)
}

func (m viewerModel) viewDetail() string {
	title := detailTitleStyle.Render("Posting")
	content := activeBorderStyle.Width(m.width - 2).Render(m.detailViewport.View())
	status := statusBarStyle.Width(m.width).Render(" o open URL  esc/backspace back  ↑/↓ scroll  q quit")
	return title + "\n" + content + "\n" + status
}

func (m viewerModel) renderDetail() string {
	p := m.detail
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", p.Title)
	addField("Company", p.Company)
	addField("Location", p.Location)
	if p.PostedAt != nil {
		addField("Posted At", p.PostedAt.Format("2006-01-02"))
	}
	addField("URL", p.URL)

	wrapWidth := max(m.width-8, 20)
	if p.Description != "" {
		b.WriteByte('\n')
		b.WriteString(dividerStyle.Render("── Description " + strings.Repeat("─", max(wrapWidth-15, 3))))
		b.WriteString("\n\n")
		b.WriteString(bodyStyle.Render(wordWrap(p.Description, wrapWidth)))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderPostings(postings []model.RawPosting, cursor int, isActive bool) string {
	if len(postings) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, p := range postings {
		tSt, sSt, prefix := titleStyle, subtitleStyle, "  "
		if isActive && i == cursor {
			tSt, sSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix)
		b.WriteString(tSt.Render(p.Title))
		b.WriteByte('\n')

		location := p.Location
		if location == "" {
			location = p.Company
		}
		posted := "n/a"
		if p.PostedAt != nil {
			posted = p.PostedAt.Format("2006-01-02")
		}
		b.WriteString(prefix)
		b.WriteString(sSt.Render(fmt.Sprintf("%s · %s", location, posted)))
		b.WriteByte('\n')

		if i < len(postings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// RenderSummary renders the non-interactive form of a preview: failures first, then the matches.
func RenderSummary(p Preview) string {
	var b strings.Builder
	b.WriteString(detailTitleStyle.Render(fmt.Sprintf("%d of %d extracted postings match", len(p.Matched), len(p.All))))
	b.WriteByte('\n')
	b.WriteString(keywordsStyle.Render("keywords: " + strings.Join(p.Alert.Words(), ", ")))
	b.WriteString("\n\n")

	for _, f := range p.Failures {
		b.WriteString(failureStyle.Render(fmt.Sprintf("✗ %s: %v", f.Company, f.Err)))
		b.WriteByte('\n')
	}
	if len(p.Failures) > 0 {
		b.WriteByte('\n')
	}
	for _, m := range p.Matched {
		b.WriteString(titleStyle.Render(m.Title))
		b.WriteByte('\n')
		b.WriteString(subtitleStyle.Render("  " + m.URL))
		b.WriteByte('\n')
	}
	return b.String()
}

// sortByPostedAt orders newest first; postings without a date keep their extraction order at the end.
func sortByPostedAt(postings []model.RawPosting) {
	sort.SliceStable(postings, func(i, j int) bool {
		a, b := postings[i].PostedAt, postings[j].PostedAt
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunPreviewTUI launches the split-pane preview viewer.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed esc to return to the picker.
func RunPreviewTUI(p Preview) (bool, error) {
	prog := tea.NewProgram(newViewerModel(p), tea.WithAltScreen())
	result, err := prog.Run()
	if err != nil {
		return false, err
	}
	return result.(viewerModel).wantQuit, nil
}
