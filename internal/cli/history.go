package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/MongoAgent/internal/history"
	"github.com/wwwzy/MongoAgent/internal/storage"
)

var (
	historySession string
	historyIntent  string
	historyLimit   int
	historySince   time.Duration
	historyClear   bool
)

// historyCmd 查看本地记录的对话轮次
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "列出最近的对话轮次",
	Long: `从本地存储读取对话轮次记录（语言、意图、操作、结果与耗时）。
使用 --clear 与 --session 可清除该会话在历史存储（Redis 或内存）中的消息。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if historyClear {
			if historySession == "" {
				return fmt.Errorf("--clear 需要同时指定 --session")
			}
			repo, closeFn, err := history.Open(ctx, cfg.Redis)
			if err != nil {
				return fmt.Errorf("连接会话历史失败: %w", err)
			}
			defer closeFn()
			if err := repo.ClearHistory(ctx, historySession); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已清除会话 %s 的历史消息。\n", historySession)
			return nil
		}

		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		q := storage.TurnQuery{
			ConversationID: historySession,
			Intent:         strings.ToUpper(historyIntent),
			Limit:          historyLimit,
			Desc:           true,
		}
		if historySince > 0 {
			from := time.Now().UTC().Add(-historySince)
			q.From = &from
		}
		records, err := store.QueryTurnRecords(ctx, q)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSESSION\tLANG\tINTENT\tOPERATION\tOUTCOME\tMS\tMESSAGE")
		// 按时间正序输出，最新的在最后
		for i := len(records) - 1; i >= 0; i-- {
			r := records[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.CreatedAt.Local().Format("01-02 15:04:05"),
				shorten(r.ConversationID, 8),
				r.Language,
				r.Intent,
				r.Operation,
				r.Outcome,
				r.DurationMS,
				shorten(oneLine(r.UserMessage), 60),
			)
		}
		return w.Flush()
	},
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historySession, "session", "", "只显示指定会话")
	historyCmd.Flags().StringVar(&historyIntent, "intent", "", "按意图过滤: general_conversation/business_inquiry")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "最多显示的条数")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "只显示最近一段时间内的记录，例如 24h")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "清除 --session 指定会话的历史消息")
}
