package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wwwzy/MongoAgent/internal/agent"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	traceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(1)

	bubbleStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userBubble      = bubbleStyle.BorderForeground(lipgloss.Color("205"))
	assistantBubble = bubbleStyle.BorderForeground(lipgloss.Color("63"))
	inputBox        = bubbleStyle

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func (m chatModel) View() string {
	header := titleStyle.Render("MongoAgent") + dimStyle.Render("  会话 "+m.session)
	input := inputBox.Width(max(1, m.input.Width+2)).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), input, m.statusLine())
}

// statusLine 左侧为按键提示，右侧为进行中的提示或上一轮的执行摘要。
func (m chatModel) statusLine() string {
	left := dimStyle.Render("Enter 发送 · ↑/↓ 历史 · PgUp/PgDn 滚动 · Ctrl+C 退出")

	var right string
	switch {
	case m.busy:
		right = m.spinner.View() + " 思考中..."
	case m.last != nil:
		right = lastSummary(*m.last)
	}

	gap := max(1, m.outerWidth()-lipgloss.Width(left)-lipgloss.Width(right)-2)
	return " " + left + strings.Repeat(" ", gap) + right
}

func lastSummary(r agent.Reply) string {
	parts := []string{string(r.Intent)}
	if r.Operation != "" {
		parts = append(parts, r.Operation)
	}
	if r.Language != "" {
		parts = append(parts, r.Language)
	}
	label := strings.Join(parts, " · ")
	if r.Outcome == "success" {
		return okStyle.Render("● ") + dimStyle.Render(label)
	}
	return failStyle.Render("● "+r.Outcome) + dimStyle.Render(" "+label)
}

func (m chatModel) renderTranscript() string {
	blocks := make([]string, 0, len(m.transcript))
	for i, e := range m.transcript {
		text := strings.TrimRight(e.content, "\n")
		streaming := m.stream != nil && m.stream.idx == i
		if streaming {
			text = string(m.stream.runes[:m.stream.shown])
		}

		switch e.role {
		case roleUser:
			blocks = append(blocks, m.userBlock(text))
		case roleAssistant:
			blocks = append(blocks, m.assistantBlock(text, streaming))
		default:
			blocks = append(blocks, traceStyle.Width(m.contentWidth()).Render(text))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (m chatModel) userBlock(text string) string {
	bubble := userBubble.
		MaxWidth(m.outerWidth() - 4).
		Render(fit(text, m.contentWidth()))
	return lipgloss.PlaceHorizontal(m.outerWidth(), lipgloss.Right, bubble)
}

// assistantBlock 回答完整显示后才做 markdown 渲染，避免半截语法闪烁。
func (m chatModel) assistantBlock(text string, streaming bool) string {
	if m.md != nil && !streaming {
		if out, err := m.md.Render(text); err == nil {
			text = strings.TrimSpace(out)
		}
	}
	return assistantBubble.
		MaxWidth(m.outerWidth() - 4).
		Render(fit(text, m.contentWidth()))
}

func (m chatModel) outerWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(24, m.width)
}

func (m chatModel) contentWidth() int {
	return max(16, m.outerWidth()-8)
}

// fit 把文本收窄到最长行的宽度，且不超过 limit。
func fit(text string, limit int) string {
	w := 0
	for _, line := range strings.Split(text, "\n") {
		w = max(w, lipgloss.Width(strings.TrimRight(line, " ")))
	}
	w = min(limit, max(8, w))
	return lipgloss.NewStyle().Width(w).Render(text)
}
