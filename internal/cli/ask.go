package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/ui"
)

var (
	askSession string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "发送单条消息并输出回答",
	Example: `  mongoagent ask "How many users are there?"
  mongoagent ask --json "¿Cuántos pedidos hay?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		reply := a.service.Invoke(ctx, agent.Request{
			ConversationID: askSession,
			Message:        strings.Join(args, " "),
		})

		out := cmd.OutOrStdout()
		if askJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reply)
		}
		fmt.Fprintln(out, reply.Response)
		fmt.Fprintln(os.Stderr, ui.TraceLine(reply))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askSession, "session", "", "会话 ID，用于携带历史")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "以 JSON 输出完整结果")
}
