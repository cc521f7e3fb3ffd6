package tui

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/ui"
)

const (
	// streamStep 为每次刷新追加显示的字符数（按 rune 计）。
	streamStep     = 24
	streamInterval = 40 * time.Millisecond
)

type ChatUI struct{}

func (u *ChatUI) Run(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) error {
	p := tea.NewProgram(newChatModel(ctx, backend, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleTrace
)

type entry struct {
	role    role
	content string
}

type (
	replyMsg      struct{ reply agent.Reply }
	streamTickMsg struct{}
	cancelMsg     struct{}
)

// stream 记录正在逐段显示的回答。
type stream struct {
	idx   int
	runes []rune
	shown int
}

func (s *stream) active() bool { return s != nil && s.shown < len(s.runes) }

var stdioMu sync.Mutex

type chatModel struct {
	ctx     context.Context
	backend ui.ChatBackend
	opts    ui.ChatOptions
	session string

	transcript []entry
	last       *agent.Reply

	// sent 为本次会话已发送的输入，上下键回填。
	sent   []string
	recall int

	width, height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	busy     bool
	follow   bool
	stream   *stream

	md *glamour.TermRenderer
}

func newChatModel(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	in := textinput.New()
	in.Placeholder = "用任意语言提问，回车发送"
	in.Prompt = ""
	in.CharLimit = 4000
	in.Focus()

	return chatModel{
		ctx:      ctx,
		backend:  backend,
		opts:     opts,
		session:  opts.Session(),
		viewport: viewport.New(0, 0),
		input:    in,
		spinner:  sp,
		follow:   true,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitCancel(m.ctx))
}

func waitCancel(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return cancelMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case replyMsg:
		return m.onReply(msg.reply)
	case streamTickMsg:
		return m.onStreamTick()
	case tea.KeyMsg:
		return m.onKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) resize(w, h int) {
	m.width, m.height = w, h

	// 标题 1 行，输入框 3 行，状态栏 1 行
	m.viewport.Width = w
	m.viewport.Height = max(1, h-5)
	m.input.Width = max(10, w-4)

	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.contentWidth()),
	); err == nil {
		m.md = r
	}
	m.refresh()
}

func (m chatModel) onReply(reply agent.Reply) (tea.Model, tea.Cmd) {
	m.busy = false
	m.follow = true
	m.last = &reply

	text := strings.TrimSpace(reply.Response)
	if text == "" {
		text = "(无输出)"
	}
	m.transcript = append(m.transcript, entry{role: roleAssistant, content: text})
	st := &stream{idx: len(m.transcript) - 1, runes: []rune(text)}
	st.shown = min(len(st.runes), streamStep)
	if st.active() {
		m.stream = st
	} else {
		m.stream = nil
	}
	if m.opts.ShowTrace {
		m.transcript = append(m.transcript, entry{role: roleTrace, content: ui.TraceLine(reply)})
	}

	m.refresh()
	if m.stream != nil {
		return m, streamTick()
	}
	return m, nil
}

func (m chatModel) onStreamTick() (tea.Model, tea.Cmd) {
	if !m.stream.active() {
		m.stream = nil
		return m, nil
	}
	m.stream.shown = min(len(m.stream.runes), m.stream.shown+streamStep)
	done := !m.stream.active()
	if done {
		m.stream = nil
	}
	m.refresh()
	if done {
		return m, nil
	}
	return m, streamTick()
}

func (m chatModel) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyPgUp:
		m.viewport.PageUp()
		m.follow = false
		return m, nil
	case tea.KeyPgDown:
		m.viewport.PageDown()
		m.follow = m.viewport.AtBottom()
		return m, nil
	case tea.KeyUp, tea.KeyDown:
		m.recallInput(msg.Type == tea.KeyUp)
		return m, nil
	case tea.KeyEnter:
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// recallInput 在已发送的输入之间切换，越过最新一条时清空输入框。
func (m *chatModel) recallInput(older bool) {
	if len(m.sent) == 0 {
		return
	}
	if older {
		m.recall = max(0, m.recall-1)
	} else {
		m.recall = min(len(m.sent), m.recall+1)
	}
	if m.recall == len(m.sent) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.sent[m.recall])
	m.input.CursorEnd()
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	// 上一轮未返回前不接受新消息
	if m.busy {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if ui.IsExit(text) {
		return m, tea.Quit
	}

	m.sent = append(m.sent, text)
	m.recall = len(m.sent)
	m.transcript = append(m.transcript, entry{role: roleUser, content: text})
	m.input.SetValue("")
	m.busy = true
	m.follow = true
	m.refresh()

	return m, tea.Batch(m.spinner.Tick, invokeBackend(m.ctx, m.backend, ui.NewRequest(m.session, text)))
}

func (m *chatModel) refresh() {
	offset := m.viewport.YOffset
	m.viewport.SetContent(m.renderTranscript())
	if m.follow {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(offset)
}

func invokeBackend(ctx context.Context, backend ui.ChatBackend, req agent.Request) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{reply: invokeQuietly(ctx, backend, req)}
	}
}

// invokeQuietly 调用期间把 stdout/stderr 指向 /dev/null，避免第三方输出破坏全屏界面。
func invokeQuietly(ctx context.Context, backend ui.ChatBackend, req agent.Request) agent.Reply {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return backend.Invoke(ctx, req)
	}
	defer devNull.Close()

	stdioMu.Lock()
	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = devNull, devNull
	stdioMu.Unlock()

	defer func() {
		stdioMu.Lock()
		os.Stdout, os.Stderr = stdout, stderr
		stdioMu.Unlock()
	}()
	return backend.Invoke(ctx, req)
}

func streamTick() tea.Cmd {
	return tea.Tick(streamInterval, func(time.Time) tea.Msg { return streamTickMsg{} })
}
