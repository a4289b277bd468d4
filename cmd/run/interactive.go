package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-hostbridge/config"
	"github.com/wippyai/wasm-hostbridge/event"
	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/job"
	"github.com/wippyai/wasm-hostbridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	refreshInterval = 250 * time.Millisecond
	logLines        = 8
	resultLines     = 5
)

type keyMap struct {
	Quit key.Binding
	Eval key.Binding
	Stop key.Binding
	Back key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Eval: key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "eval")),
	Stop: key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "stop worker")),
	Back: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

// logRing keeps the last lines written to it for the dashboard.
type logRing struct {
	lines []string
	mu    sync.Mutex
}

func (r *logRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		r.lines = append(r.lines, line)
	}
	if len(r.lines) > logLines {
		r.lines = append([]string(nil), r.lines[len(r.lines)-logLines:]...)
	}
	return len(p), nil
}

func (r *logRing) Sync() error { return nil }

func (r *logRing) tail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type modelState int

const (
	stateLoading modelState = iota
	stateRunning
	stateEval
)

type interactiveModel struct {
	started  time.Time
	err      error
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Config
	rt       *runtime.Runtime
	logs     *logRing
	flags    flags
	pending  []handle.Handle
	results  []string
	table    table.Model
	input    textinput.Model
	stats    job.Stats
	inputID  uint64
	buttons  int32
	width    int
	height   int
	state    modelState
	finished bool
}

type loadedMsg struct {
	err error
	rt  *runtime.Runtime
}

type runDoneMsg struct {
	err error
}

type refreshMsg time.Time

func newInteractiveModel(f flags, cfg *config.Config) *interactiveModel {
	ctx, cancel := context.WithCancel(context.Background())

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Worker", Width: 8},
			{Title: "Source", Width: 28},
			{Title: "Kind", Width: 9},
			{Title: "Uptime", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)

	ti := textinput.New()
	ti.Prompt = "eval> "
	ti.Placeholder = "script expression"
	ti.Width = 60

	return &interactiveModel{
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logs:    &logRing{},
		flags:   f,
		table:   t,
		input:   ti,
		state:   stateLoading,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

// load builds the runtime with logs routed to the dashboard, loads the
// guest and runs its entry point.
func (m *interactiveModel) load() tea.Msg {
	data, err := os.ReadFile(m.flags.wasm)
	if err != nil {
		return loadedMsg{err: err}
	}

	sink := m.logs
	log, err := m.cfg.Logging.Build(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.TimeKey = ""
		return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(sink), c)
	}))
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := runtime.New(m.ctx, m.cfg, runtime.WithLogger(log))
	if err != nil {
		return loadedMsg{err: err}
	}
	inst, err := rt.LoadWASM(m.ctx, data)
	if err != nil {
		_ = rt.Close(context.Background())
		return loadedMsg{err: err}
	}
	if err := inst.Main(m.ctx, m.flags.entry); err != nil {
		_ = rt.Close(context.Background())
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt}
}

func (m *interactiveModel) run() tea.Msg {
	return runDoneMsg{err: m.rt.Run(m.ctx)}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *interactiveModel) shutdown() {
	m.cancel()
	if m.rt != nil {
		_ = m.rt.Close(context.Background())
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.shutdown()
			return m, tea.Quit
		}
		if m.rt == nil {
			return m, nil
		}
		return m.updateKey(msg)

	case tea.MouseMsg:
		if m.state == stateRunning {
			m.forwardMouse(msg)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.dispatch(event.Event{Target: "window", Name: "resize", X: float64(msg.Width), Y: float64(msg.Height)})

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.state = stateRunning
		m.dispatch(event.Event{Target: "window", Name: "resize", X: float64(m.width), Y: float64(m.height)})
		return m, tea.Batch(m.run, refresh())

	case runDoneMsg:
		m.finished = true
		if msg.err != nil {
			m.err = msg.err
		}

	case refreshMsg:
		m.refresh()
		if m.finished {
			return m, nil
		}
		return m, refresh()
	}
	return m, nil
}

func (m *interactiveModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == stateEval {
		switch {
		case key.Matches(msg, keys.Back):
			m.state = stateRunning
			m.input.Blur()
			return m, nil
		case msg.Type == tea.KeyEnter:
			m.submit(m.input.Value())
			m.input.Reset()
			m.input.Blur()
			m.state = stateRunning
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Eval):
		m.state = stateEval
		return m, m.input.Focus()
	case key.Matches(msg, keys.Stop):
		if h, ok := m.selectedWorker(); ok {
			m.rt.Workers().Stop(h)
			m.refresh()
		}
		return m, nil
	}

	m.dispatch(event.Event{Target: "document", Name: "keydown", Button: keyCode(msg)})
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// keyCode is the key's first rune, or its bubbletea key type for named keys.
func keyCode(msg tea.KeyMsg) int32 {
	if len(msg.Runes) > 0 {
		return int32(msg.Runes[0])
	}
	return int32(msg.Type)
}

// forwardMouse maps terminal mouse input to mouse and pointer events on
// #canvas. A release also produces a click.
func (m *interactiveModel) forwardMouse(msg tea.MouseMsg) {
	button, mask := int32(0), int32(0)
	switch msg.Button {
	case tea.MouseButtonLeft:
		button, mask = 0, 1
	case tea.MouseButtonMiddle:
		button, mask = 1, 4
	case tea.MouseButtonRight:
		button, mask = 2, 2
	default:
		return
	}

	var names []string
	switch msg.Action {
	case tea.MouseActionPress:
		m.inputID++
		m.buttons |= mask
		names = []string{"pointerdown", "mousedown"}
	case tea.MouseActionRelease:
		m.buttons &^= mask
		names = []string{"pointerup", "mouseup", "click"}
	case tea.MouseActionMotion:
		names = []string{"pointermove", "mousemove"}
	}

	for _, name := range names {
		m.dispatch(event.Event{
			Target:      "#canvas",
			Name:        name,
			PointerType: "mouse",
			X:           float64(msg.X),
			Y:           float64(msg.Y),
			Button:      button,
			Buttons:     m.buttons,
			Pressure:    0.5,
			InputID:     m.inputID,
		})
	}
}

func (m *interactiveModel) dispatch(e event.Event) {
	if m.rt == nil {
		return
	}
	e.Timestamp = float64(time.Since(m.started).Microseconds()) / 1e3
	if err := m.rt.DispatchEvent(m.ctx, e); err != nil {
		m.err = err
	}
}

// submit evaluates code in the selected worker, or locally when there is
// none. Results are collected on refresh.
func (m *interactiveModel) submit(code string) {
	if strings.TrimSpace(code) == "" {
		return
	}
	owner, _ := m.selectedWorker()
	h, err := m.rt.Jobs().Submit(owner, code)
	if err != nil {
		m.addResult(errorStyle.Render(err.Error()))
		return
	}
	m.pending = append(m.pending, h)
}

func (m *interactiveModel) addResult(s string) {
	m.results = append(m.results, s)
	if len(m.results) > resultLines {
		m.results = m.results[len(m.results)-resultLines:]
	}
}

func (m *interactiveModel) selectedWorker() (handle.Handle, bool) {
	row := m.table.SelectedRow()
	if row == nil {
		return handle.Invalid, false
	}
	v, err := strconv.ParseUint(row[0], 10, 32)
	if err != nil {
		return handle.Invalid, false
	}
	return handle.Handle(v), true
}

func (m *interactiveModel) refresh() {
	if m.rt == nil {
		return
	}
	pool := m.rt.Workers()
	var rows []table.Row
	for _, h := range pool.List(-1) {
		info, ok := pool.Info(h)
		if !ok {
			continue
		}
		rows = append(rows, table.Row{
			strconv.FormatUint(uint64(h), 10),
			info.Source,
			info.Kind.String(),
			time.Since(info.Started).Truncate(time.Second).String(),
		})
	}
	m.table.SetRows(rows)

	kept := m.pending[:0]
	for _, h := range m.pending {
		switch st, v := m.rt.Jobs().Poll(h); st {
		case job.StatusPending:
			kept = append(kept, h)
		case job.StatusReady:
			m.addResult(fmt.Sprintf("#%d %s", h, resultStyle.Render(v)))
		case job.StatusAbandoned:
			m.addResult(errorStyle.Render(fmt.Sprintf("#%d abandoned", h)))
		case job.StatusNotFound:
		}
	}
	m.pending = kept
	m.stats = m.rt.Jobs().Stats()
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.rt == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.state == stateLoading {
		return "Loading guest..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("WASM Host Bridge"))
	b.WriteString(" ")
	b.WriteString(m.flags.wasm)
	if m.finished {
		b.WriteString(errorStyle.Render("  (stopped)"))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Workers"))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Jobs "))
	b.WriteString(fmt.Sprintf("pending %d  ready %d  abandoned %d   ", m.stats.Pending, m.stats.Ready, m.stats.Abandoned))
	b.WriteString(labelStyle.Render("Timers "))
	b.WriteString(fmt.Sprintf("%d  ", m.rt.Timers().Len()))
	b.WriteString(labelStyle.Render("Listeners "))
	b.WriteString(fmt.Sprintf("%d\n\n", m.rt.Events().Len()))

	if len(m.results) > 0 {
		b.WriteString(strings.Join(m.results, "\n"))
		b.WriteString("\n\n")
	}
	if m.state == stateEval {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	for _, line := range m.logs.tail() {
		b.WriteString(logStyle.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.state == stateEval {
		b.WriteString(helpStyle.Render("enter submit • esc back • ctrl+c quit"))
	} else {
		b.WriteString(helpStyle.Render("keys and mouse go to the guest • ↑/↓ select worker • ctrl+e eval • ctrl+x stop worker • ctrl+c quit"))
	}
	return b.String()
}

func runInteractive(f flags, cfg *config.Config) error {
	m := newInteractiveModel(f, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())
	_, err := p.Run()
	m.shutdown()
	return err
}
