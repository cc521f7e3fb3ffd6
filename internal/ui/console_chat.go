package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wwwzy/MongoAgent/internal/agent"
)

const (
	consoleBanner = "进入 MongoAgent 对话模式。输入 exit/quit 退出。"
	consoleBye    = "已退出。"
	consolePrompt = "你: "
)

// ConsoleChatUI 逐行读取输入的终端对话界面。
type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	switch {
	case u.In == nil:
		return errors.New("console ui: In is nil")
	case u.Out == nil:
		return errors.New("console ui: Out is nil")
	}

	session := opts.Session()
	fmt.Fprintf(u.Out, "%s\n会话: %s\n", consoleBanner, session)

	sc := bufio.NewScanner(u.In)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for ctx.Err() == nil {
		fmt.Fprint(u.Out, consolePrompt)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("读取输入失败: %w", err)
			}
			// 输入流结束，补一个换行让提示符后的输出另起一行
			fmt.Fprintln(u.Out)
			break
		}

		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case IsExit(line):
			fmt.Fprintln(u.Out, consoleBye)
			return nil
		}
		u.respond(backend.Invoke(ctx, NewRequest(session, line)), opts.ShowTrace)
	}

	fmt.Fprintln(u.Out, consoleBye)
	return nil
}

func (u *ConsoleChatUI) respond(reply agent.Reply, showTrace bool) {
	text := strings.TrimSpace(reply.Response)
	if text == "" {
		text = "(无输出)"
	}
	fmt.Fprintf(u.Out, "助手: %s\n", text)
	if showTrace {
		fmt.Fprintln(u.Out, TraceLine(reply))
	}
	fmt.Fprintln(u.Out)
}
