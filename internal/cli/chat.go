package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wwwzy/MongoAgent/internal/core"
	"github.com/wwwzy/MongoAgent/internal/retention"
	"github.com/wwwzy/MongoAgent/internal/tui"
	"github.com/wwwzy/MongoAgent/internal/ui"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

var (
	chatUI        string
	chatSession   string
	chatShowTrace bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `进入对话模式，用任意语言提问或管理 MongoDB 中的数据。
闲聊会直接回答；业务问题会被转换为数据库操作并执行。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
			// 全屏界面下日志会破坏画面
			logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment), Level: cfg.LogLevel, Out: io.Discard})
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Retention.Enabled {
			startRetention(ctx, a)
		}

		return uiImpl.Run(ctx, a.service, ui.ChatOptions{
			ConversationID: chatSession,
			ShowTrace:      chatShowTrace,
		})
	},
}

// startRetention 在后台运行清理任务，随 ctx 结束。
func startRetention(ctx context.Context, a *app) {
	collector, err := retention.NewCollector(a.store, cfg.Retention)
	if err != nil {
		logx.Warn().Err(err).Msg("retention disabled")
		return
	}
	go func() {
		if err := collector.Run(ctx); err != nil {
			logx.Warn().Err(err).Msg("retention stopped")
		}
	}()
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "继续指定的会话 ID（默认新建）")
	chatCmd.Flags().BoolVar(&chatShowTrace, "trace", false, "每条回答后显示意图、操作与节点路径")
}
