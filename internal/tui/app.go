package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JohnDeved/rombrowse/internal/dispatch"
	"github.com/JohnDeved/rombrowse/internal/downloader"
	"github.com/JohnDeved/rombrowse/internal/filter"
	"github.com/JohnDeved/rombrowse/internal/navigator"
	"github.com/JohnDeved/rombrowse/internal/queue"
	"github.com/JohnDeved/rombrowse/internal/store"
	"github.com/JohnDeved/rombrowse/internal/util"
)

// Tab identifies the active view.
type Tab int

const (
	TabBrowse Tab = iota
	TabQueue
	TabDownloads
)

// Messages
type navDoneMsg struct {
	err    error
	sel    *navigator.Selected
	status string
}

type progressMsg struct{ p downloader.Progress }

type itemResultMsg struct {
	r dispatch.ItemResult
	t dispatch.Tally
}

type batchDoneMsg struct{ outcome dispatch.Outcome }

type rulesReloadedMsg struct{ patterns int }

type statusClearMsg struct{ id int }

// notifier forwards callbacks from worker goroutines into the program.
type notifier struct {
	mu sync.Mutex
	p  *tea.Program
}

func (n *notifier) set(p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
}

func (n *notifier) send(msg tea.Msg) {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Options wires the TUI to the core components.
type Options struct {
	Navigator  *navigator.Navigator
	Queue      *queue.Queue
	Rules      *filter.Rules // watched for external edits when set
	Downloader *downloader.Downloader
	// Dispatch carries the dispatcher settings; Queue, Downloader and
	// OnResult are filled in by Run.
	Dispatch dispatch.Options
	Dataset  string // dataset to open, default first
	Path     string // optional start path inside it
}

// Model is the main Bubble Tea model.
type Model struct {
	nav       *navigator.Navigator
	disp      *dispatch.Dispatcher
	queue     *queue.Queue
	activeTab Tab
	browser   browserModel
	queueView queueModel
	downloads downloadsModel
	prompt    textinput.Model
	spinner   spinner.Model

	// The navigator is owned by the running command while loading is set.
	loading        bool
	pendingReapply bool
	crumbDataset   string
	crumb          string
	recent         []store.RecentDir

	batchRunning bool
	batchAction  dispatch.Action
	cancelBatch  context.CancelFunc

	startDataset string
	startPath    string
	width        int
	height       int
	showHelp     bool
	helpOffset   int
	statusMsg    string
	statusID     int
	quitConfirm  bool
}

// NewModel creates the TUI model.
func NewModel(nav *navigator.Navigator, disp *dispatch.Dispatcher, q *queue.Queue, dataset, path string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "2:5 q, 3 d, p 4, size 100, toggle DLC, x Beta, /text, .., ds No-Intro, recent, run"
	ti.CharLimit = 256
	ti.Width = 70
	ti.Prompt = ": "
	ti.PromptStyle = promptStyle

	return Model{
		nav:          nav,
		disp:         disp,
		queue:        q,
		activeTab:    TabBrowse,
		browser:      newBrowserModel(),
		queueView:    newQueueModel(),
		downloads:    newDownloadsModel(),
		prompt:       ti,
		spinner:      s,
		loading:      true,
		crumbDataset: nav.Dataset().Name,
		crumb:        nav.Breadcrumb(),
		startDataset: dataset,
		startPath:    path,
	}
}

func (m Model) Init() tea.Cmd {
	nav, dataset, path := m.nav, m.startDataset, m.startPath
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			ctx := context.Background()
			if err := nav.Start(ctx, dataset); err != nil {
				return navDoneMsg{err: err}
			}
			if path != "" {
				return navDoneMsg{err: nav.GoTo(ctx, "", path)}
			}
			return navDoneMsg{}
		},
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewHeight := m.height - 9 // header, tabs, summary, prompt and status bar
		m.browser.height = viewHeight
		m.queueView.height = viewHeight - 2
		m.downloads.height = (viewHeight - 4) / 2
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case navDoneMsg:
		m.loading = false
		m.crumbDataset = m.nav.Dataset().Name
		m.crumb = m.nav.Breadcrumb()
		if msg.sel == nil {
			m.browser.reset()
		}
		if m.pendingReapply {
			m.pendingReapply = false
			m.nav.Reapply()
		}
		switch {
		case msg.err != nil:
			return m, m.setStatus(errorText(msg.err))
		case msg.sel != nil:
			return m, m.setStatus(fmt.Sprintf("%d. %s  %s  (add an action: p c h q d)", msg.sel.Number, msg.sel.Target.Title, msg.sel.URL))
		case msg.status != "":
			return m, m.setStatus(msg.status)
		}
		return m, nil

	case progressMsg:
		m.downloads.onProgress(msg.p)
		return m, nil

	case itemResultMsg:
		if m.batchAction == dispatch.DownloadNow {
			m.downloads.onResult(msg.r, msg.t)
		}
		return m, nil

	case batchDoneMsg:
		return m.finishBatch(msg.outcome)

	case rulesReloadedMsg:
		if m.loading {
			m.pendingReapply = true
			return m, nil
		}
		m.nav.Reapply()
		return m, m.setStatus(fmt.Sprintf("Filter rules reloaded (%d)", msg.patterns))

	case statusClearMsg:
		if msg.id == m.statusID {
			m.statusMsg = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.prompt.Focused() {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.prompt.Focused() {
		switch key {
		case "ctrl+c":
			return m.quit()
		case "esc":
			m.prompt.Blur()
			m.prompt.SetValue("")
			return m, nil
		case "enter":
			line := m.prompt.Value()
			m.prompt.Blur()
			m.prompt.SetValue("")
			c, err := parseCommand(line)
			if err != nil {
				return m, m.setStatus(errorText(err))
			}
			return m.execute(c)
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	if m.showHelp {
		switch key {
		case "?", "esc":
			m.showHelp = false
			m.helpOffset = 0
			return m, nil
		case "up", "k":
			if m.helpOffset > 0 {
				m.helpOffset--
			}
			return m, nil
		case "down", "j":
			m.helpOffset++
			return m, nil
		}
	}

	// Global keys.
	switch key {
	case "ctrl+c", "q":
		return m.quit()

	case "esc":
		if m.quitConfirm {
			m.quitConfirm = false
			return m, m.setStatus("Quit canceled")
		}
		if m.recent != nil {
			m.recent = nil
			return m, nil
		}

	case "?":
		m.showHelp = !m.showHelp
		m.helpOffset = 0
		return m, nil

	case ":":
		m.prompt.Focus()
		return m, textinput.Blink

	case "/":
		m.prompt.Focus()
		m.prompt.SetValue("/")
		m.prompt.CursorEnd()
		return m, textinput.Blink

	case "1":
		m.activeTab = TabBrowse
		return m, nil

	case "2":
		return m.showQueue()

	case "3":
		m.activeTab = TabDownloads
		return m, nil

	case "tab":
		switch m.activeTab {
		case TabBrowse:
			return m.showQueue()
		case TabQueue:
			m.activeTab = TabDownloads
		case TabDownloads:
			m.activeTab = TabBrowse
		}
		return m, nil
	}

	switch m.activeTab {
	case TabBrowse:
		return m.handleBrowseKey(key)
	case TabQueue:
		return m.handleQueueKey(key)
	case TabDownloads:
		return m.handleDownloadsKey(key)
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	up := msg.Button == tea.MouseButtonWheelUp
	down := msg.Button == tea.MouseButtonWheelDown
	if !up && !down {
		return m, nil
	}
	switch m.activeTab {
	case TabBrowse:
		total := len(m.nav.Page())
		if up {
			m.browser.moveUp(total)
		} else {
			m.browser.moveDown(total)
		}
	case TabQueue:
		if up {
			m.queueView.moveUp()
		} else {
			m.queueView.moveDown()
		}
	case TabDownloads:
		if up {
			m.downloads.moveUp()
		} else {
			m.downloads.moveDown()
		}
	}
	return m, nil
}

func (m Model) handleBrowseKey(key string) (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	items := m.nav.Page()

	switch key {
	case "up", "k":
		m.browser.moveUp(len(items))
	case "down", "j":
		m.browser.moveDown(len(items))
	case "home", "g":
		m.browser.goHome()
	case "end", "G":
		m.browser.goEnd(len(items))

	case "enter", "l", "right":
		if it, ok := m.browser.current(items); ok {
			return m.execute(command{kind: cmdOpen, numbers: []int{it.Number}})
		}

	case "backspace", "h", "left":
		return m.execute(command{kind: cmdUp})

	case "pgdown", "n", "]":
		return m.execute(command{kind: cmdNextPage})

	case "pgup", "b", "[":
		return m.execute(command{kind: cmdPrevPage})

	case "r":
		return m.execute(command{kind: cmdRefresh})

	case " ":
		m.browser.toggleMark(items)
		m.browser.moveDown(len(items))

	case "*":
		m.browser.markAll(items)

	case "d", "e", "E", "y", "p":
		actions := map[string]dispatch.Action{
			"d": dispatch.DownloadNow,
			"e": dispatch.EnqueueTail,
			"E": dispatch.EnqueueHead,
			"y": dispatch.CopyURL,
			"p": dispatch.PrintURL,
		}
		numbers := m.browser.markedNumbers(items)
		if len(numbers) == 0 {
			return m, nil
		}
		return m.execute(command{kind: cmdSelect, numbers: numbers, action: actions[key]})

	case "esc":
		if n := len(m.browser.marked); n > 0 {
			m.browser.marked = make(map[int]bool)
			return m, m.setStatus(fmt.Sprintf("Cleared %d marks", n))
		}
		if m.nav.Query() != "" {
			return m.execute(command{kind: cmdClearSearch})
		}
	}
	return m, nil
}

func (m Model) handleQueueKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.queueView.moveUp()
	case "down", "j":
		m.queueView.moveDown()
	case "x", "delete":
		e, ok := m.queueView.selected()
		if !ok {
			return m, nil
		}
		if err := m.queue.Remove(e); err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.queueView.load(m.queue)
		return m, m.setStatus("Removed from queue: " + e.Title)
	case "r":
		return m.showQueue()
	case "R":
		return m.execute(command{kind: cmdRun})
	}
	return m, nil
}

func (m Model) handleDownloadsKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.downloads.moveUp()
	case "down", "j":
		m.downloads.moveDown()
	case "c":
		if m.batchRunning && m.cancelBatch != nil {
			m.cancelBatch()
			return m, m.setStatus("Cancelling the running batch")
		}
		return m, m.setStatus("Nothing to cancel")
	case "x":
		if n := m.downloads.clearFinished(); n > 0 {
			return m, m.setStatus(fmt.Sprintf("Cleared %d finished downloads", n))
		}
		return m, m.setStatus("No finished downloads to clear")
	}
	return m, nil
}

func (m Model) showQueue() (Model, tea.Cmd) {
	m.activeTab = TabQueue
	if err := m.queueView.load(m.queue); err != nil {
		return m, m.setStatus(errorText(err))
	}
	return m, nil
}

func (m Model) quit() (Model, tea.Cmd) {
	if m.quitConfirm || !m.batchRunning {
		if m.cancelBatch != nil {
			m.cancelBatch()
		}
		return m, tea.Quit
	}
	m.quitConfirm = true
	return m, m.setStatus("A batch is running. Press q again to cancel it and quit, or Esc to stay")
}

// execute applies one prompt command.
func (m Model) execute(c command) (Model, tea.Cmd) {
	switch c.kind {
	case cmdNone:
		return m, nil
	case cmdHelp:
		m.showHelp = true
		return m, nil
	case cmdQuit:
		return m.quit()
	case cmdRun:
		return m.startQueueRun()
	}

	if m.loading {
		return m, m.setStatus("Still loading, try again in a moment")
	}
	m.activeTab = TabBrowse
	nav := m.nav

	switch c.kind {
	case cmdOpen:
		n := c.numbers[0]
		return m.navigate(func(ctx context.Context) navDoneMsg {
			sel, err := nav.Open(ctx, n)
			return navDoneMsg{err: err, sel: sel}
		})

	case cmdUp:
		if len(nav.Stack()) == 0 {
			return m, m.setStatus("Already at the dataset root")
		}
		return m.navigate(func(ctx context.Context) navDoneMsg {
			return navDoneMsg{err: nav.Up(ctx)}
		})

	case cmdRefresh:
		return m.navigate(func(ctx context.Context) navDoneMsg {
			return navDoneMsg{err: nav.Refresh(ctx), status: "Refreshed"}
		})

	case cmdDataset:
		name := c.arg
		return m.navigate(func(ctx context.Context) navDoneMsg {
			return navDoneMsg{err: nav.SelectDataset(ctx, name)}
		})

	case cmdGoto:
		path := c.arg
		return m.navigate(func(ctx context.Context) navDoneMsg {
			return navDoneMsg{err: nav.GoTo(ctx, "", path)}
		})

	case cmdRecent:
		dirs, err := nav.Recent()
		if err != nil {
			return m, m.setStatus(errorText(err))
		}
		if c.n == 0 {
			if len(dirs) == 0 {
				return m, m.setStatus("No recent directories yet")
			}
			m.recent = dirs
			return m, nil
		}
		if c.n > len(dirs) {
			return m, m.setStatus(fmt.Sprintf("Only %d recent directories", len(dirs)))
		}
		d := dirs[c.n-1]
		m.recent = nil
		return m.navigate(func(ctx context.Context) navDoneMsg {
			return navDoneMsg{err: nav.GoTo(ctx, d.Dataset, d.Path)}
		})

	case cmdSelect:
		sel, err := nav.Select(c.numbers)
		if err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.browser.marked = make(map[int]bool)
		return m.startDispatch(c.action, sel)

	case cmdPage:
		return m.pageMove(nav.GotoPage(c.n))
	case cmdNextPage:
		return m.pageMove(nav.NextPage())
	case cmdPrevPage:
		return m.pageMove(nav.PrevPage())
	case cmdPageSize:
		if err := nav.SetPageSize(c.n); err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.browser.reset()
		return m, m.setStatus(fmt.Sprintf("Page size %d", c.n))

	case cmdToggle:
		hidden, err := nav.ToggleCategory(c.arg)
		if err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.browser.reset()
		state := "shown"
		if hidden {
			state = "hidden"
		}
		return m, m.setStatus(fmt.Sprintf("%s entries are now %s", c.arg, state))

	case cmdExclude:
		added, err := nav.AddExclusion(c.arg)
		if err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.browser.reset()
		if !added {
			return m, m.setStatus(fmt.Sprintf("%q is already excluded", c.arg))
		}
		return m, m.setStatus(fmt.Sprintf("Excluding %q", c.arg))

	case cmdUnexclude:
		removed, err := nav.RemoveExclusion(c.arg)
		if err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.browser.reset()
		if !removed {
			return m, m.setStatus(fmt.Sprintf("No exclusion rule %q", c.arg))
		}
		return m, m.setStatus(fmt.Sprintf("No longer excluding %q", c.arg))

	case cmdSearch:
		if err := nav.Search(c.arg); err != nil {
			return m, m.setStatus(errorText(err))
		}
		m.browser.reset()
		return m, nil

	case cmdClearSearch:
		nav.ClearSearch()
		m.browser.reset()
		return m, nil
	}
	return m, nil
}

// navigate hands the navigator to a command goroutine until navDoneMsg.
func (m Model) navigate(fn func(ctx context.Context) navDoneMsg) (Model, tea.Cmd) {
	m.loading = true
	m.crumb = m.nav.Breadcrumb()
	return m, func() tea.Msg {
		return fn(context.Background())
	}
}

func (m Model) pageMove(err error) (Model, tea.Cmd) {
	if err != nil {
		return m, m.setStatus(errorText(err))
	}
	m.browser.reset()
	return m, nil
}

func (m Model) startDispatch(action dispatch.Action, sel navigator.Selection) (Model, tea.Cmd) {
	if m.batchRunning {
		return m, m.setStatus("A batch is already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.batchRunning = true
	m.batchAction = action
	m.cancelBatch = cancel
	if action == dispatch.DownloadNow {
		m.downloads.begin(dispatch.FromSelection(sel))
		m.activeTab = TabDownloads
	}
	disp := m.disp
	return m, func() tea.Msg {
		defer cancel()
		return batchDoneMsg{outcome: disp.DispatchSelection(ctx, action, sel)}
	}
}

func (m Model) startQueueRun() (Model, tea.Cmd) {
	if m.batchRunning {
		return m, m.setStatus("A batch is already running")
	}
	if err := m.queue.Load(); err != nil {
		return m, m.setStatus(errorText(err))
	}
	entries := m.queue.List()
	if len(entries) == 0 {
		return m, m.setStatus("Queue is empty")
	}
	items := make([]dispatch.Item, 0, len(entries))
	for _, e := range entries {
		u, _ := m.queue.URL(e)
		items = append(items, dispatch.Item{Target: e.Target, URL: u})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.batchRunning = true
	m.batchAction = dispatch.DownloadNow
	m.cancelBatch = cancel
	m.downloads.begin(items)
	m.activeTab = TabDownloads
	disp := m.disp
	return m, func() tea.Msg {
		defer cancel()
		return batchDoneMsg{outcome: disp.ProcessQueue(ctx, dispatch.RunOptions{})}
	}
}

func (m Model) finishBatch(o dispatch.Outcome) (Model, tea.Cmd) {
	m.batchRunning = false
	m.cancelBatch = nil
	m.quitConfirm = false
	m.downloads.finish()
	if m.activeTab == TabQueue || o.Action == dispatch.EnqueueHead || o.Action == dispatch.EnqueueTail {
		m.queueView.load(m.queue)
	}

	var status string
	switch o.Action {
	case dispatch.PrintURL:
		status = strings.Join(o.URLs, "  ")
	case dispatch.CopyURL:
		status = fmt.Sprintf("Copied %d URL(s) to the clipboard", o.Tally.Succeeded)
	case dispatch.EnqueueHead:
		status = fmt.Sprintf("Queued %d at the head", o.Tally.Succeeded)
	case dispatch.EnqueueTail:
		status = fmt.Sprintf("Queued %d", o.Tally.Succeeded)
	default:
		status = "Downloads finished: " + o.Tally.String()
	}
	if len(o.Warnings) > 0 {
		status += "  (" + o.Warnings[len(o.Warnings)-1]
		if len(o.Warnings) > 1 {
			status += fmt.Sprintf(", +%d more in the log", len(o.Warnings)-1)
		}
		status += ")"
	}
	return m, m.setStatus(status)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("  rombrowse  "))
	sb.WriteString(" ")
	sb.WriteString(datasetBadge.Render(m.crumbDataset))
	sb.WriteString(" ")
	sb.WriteString(breadcrumbStyle.Render(util.TruncatePath(m.crumb, max(m.width-30, 8))))
	sb.WriteString("\n")

	tabs := []struct {
		name string
		tab  Tab
		key  string
	}{
		{"Browse", TabBrowse, "1"},
		{"Queue", TabQueue, "2"},
		{"Downloads", TabDownloads, "3"},
	}
	var tabLine strings.Builder
	for _, t := range tabs {
		label := fmt.Sprintf(" %s %s ", t.key, t.name)
		tabLine.WriteString(renderTab(label, m.activeTab == t.tab))
		tabLine.WriteString(" ")
	}
	if m.batchRunning {
		tabLine.WriteString(successStyle.Render(fmt.Sprintf(" %s %s running", m.spinner.View(), m.batchAction)))
	}
	sb.WriteString(tabLine.String())
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	switch {
	case m.showHelp:
		sb.WriteString(m.helpView(m.height - 8))
	case m.activeTab == TabBrowse && m.loading:
		sb.WriteString(fmt.Sprintf("\n  %s Loading...\n", m.spinner.View()))
	case m.activeTab == TabBrowse && m.recent != nil:
		sb.WriteString(m.recentView())
	case m.activeTab == TabBrowse:
		sb.WriteString(m.browser.view(m.nav, m.width))
	case m.activeTab == TabQueue:
		sb.WriteString(m.queueView.view(m.width))
	case m.activeTab == TabDownloads:
		sb.WriteString(m.downloads.view(m.width))
	}

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	if m.prompt.Focused() {
		sb.WriteString(m.prompt.View())
	} else {
		statusLine := m.statusMsg
		if statusLine == "" {
			statusLine = m.defaultStatus()
		}
		sb.WriteString(statusBarStyle.Width(m.width).Render(statusLine))
	}
	return sb.String()
}

func (m Model) recentView() string {
	var sb strings.Builder
	sb.WriteString(helpStyle.Render("  Recent directories (recent <n> to open, Esc to close)"))
	sb.WriteString("\n\n")
	for i, d := range m.recent {
		sb.WriteString(fmt.Sprintf("%s  %s %s  %s\n",
			numberStyle.Render(fmt.Sprintf("%d.", i+1)),
			datasetBadge.Render(d.Dataset),
			breadcrumbStyle.Render(d.Display),
			helpStyle.Render(util.FormatAgo(d.VisitedAt))))
	}
	return sb.String()
}

func (m Model) defaultStatus() string {
	if m.quitConfirm {
		return "Press q again to cancel the batch and quit, Esc to stay"
	}
	switch m.activeTab {
	case TabBrowse:
		return ":command  /search  j/k:move  Enter:open  h:up  n/b:page  Space:mark  d:download  e/E:queue  y:copy  ?:help"
	case TabQueue:
		return "j/k:navigate  x:remove  r:reload  R:run queue  ?:help"
	case TabDownloads:
		return "j/k:navigate  c:cancel batch  x:clear finished  ?:help"
	}
	return ""
}

func (m Model) helpView(maxLines int) string {
	lines := []string{
		"  Commands (press : to type one)",
		"  ──────────────────────────────",
		"",
		"    4             Open entry 4 (directory) or show its URL (file)",
		"    2:5 q         Apply an action to entries 2 to 5",
		"    1,3,7:9 d     Numbers, ranges and lists combine",
		"                  p print URL, c copy URL, h queue at head,",
		"                  q queue at tail, d download now",
		"    p 4 / n / b   Go to page 4, next page, previous page",
		"    ..            Go up one directory",
		"    size 100      Entries per page",
		"    toggle DLC    Show or hide a category for this directory",
		"    x Beta        Add an exclusion rule (saved to the rule file)",
		"    ux Beta       Remove an exclusion rule",
		"    /text         Search this directory; / alone clears it",
		"    ds No-Intro   Switch dataset",
		"    recent [n]    List recent directories or open one",
		"    go a/b/c      Open a path in the current dataset",
		"    run           Download everything in the queue",
		"    r             Refresh this directory",
		"",
		"  Keys:",
		"    Tab / 1-3     Switch views",
		"    j/k, Enter, h Move, open, go up",
		"    Space / *     Mark entry / mark every file on the page",
		"    d e E y p     Download, queue, queue at head, copy, print marked",
		"    q / Ctrl+C    Quit (twice while a batch is running)",
		"",
		"  Press ? or Esc to close help.",
	}

	maxLines = max(maxLines, 6)
	maxOffset := max(len(lines)-maxLines, 0)
	offset := min(max(m.helpOffset, 0), maxOffset)
	end := min(offset+maxLines, len(lines))
	visible := lines[offset:end]
	if maxOffset > 0 {
		visible = append(visible, fmt.Sprintf("  [%d/%d]", offset+1, maxOffset+1))
	}
	return helpStyle.Render(strings.Join(visible, "\n"))
}

func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusID++
	id := m.statusID
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return statusClearMsg{id: id}
	})
}

func errorText(err error) string {
	switch {
	case errors.Is(err, navigator.ErrNoMatches):
		return err.Error()
	case errors.Is(err, navigator.ErrInvalidSelection):
		return "Invalid selection: " + strings.TrimPrefix(err.Error(), navigator.ErrInvalidSelection.Error()+": ")
	}
	return "Error: " + err.Error()
}

// Run starts the TUI.
func Run(opts Options) error {
	n := &notifier{}

	dopts := opts.Dispatch
	dopts.Queue = opts.Queue
	dopts.Downloader = opts.Downloader
	dopts.Out = nil
	dopts.OnResult = func(r dispatch.ItemResult, t dispatch.Tally) {
		n.send(itemResultMsg{r: r, t: t})
	}
	disp := dispatch.New(dopts)
	if opts.Downloader != nil {
		opts.Downloader.SetOnProgress(func(p downloader.Progress) {
			n.send(progressMsg{p: p})
		})
	}

	m := NewModel(opts.Navigator, disp, opts.Queue, opts.Dataset, opts.Path)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	n.set(p)

	if opts.Rules != nil {
		w, err := filter.WatchRules(opts.Rules, func(patterns []string) {
			n.send(rulesReloadedMsg{patterns: len(patterns)})
		})
		if err != nil {
			log.Printf("WARN: watching %s: %v", opts.Rules.Path(), err)
		} else {
			defer w.Stop()
		}
	}

	_, err := p.Run()
	return err
}
