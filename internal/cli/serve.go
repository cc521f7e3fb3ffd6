package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wwwzy/MongoAgent/internal/retention"
	"github.com/wwwzy/MongoAgent/internal/server"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

var serveAddr string

// serveCmd 启动 HTTP 服务与后台清理任务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 MongoAgent HTTP 服务",
	Long: `启动 HTTP 服务，提供 /v1/chat、/v1/tools、/healthz 与 /metrics。
启用 retention 时同时在后台清理过期的审计与对话记录。按 Ctrl+C 停止。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srvCfg := cfg.Server
		if serveAddr != "" {
			srvCfg.Addr = serveAddr
		}
		srv := server.New(srvCfg, a.service, a.registry, a.mongo)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(gctx)
		})

		if cfg.Retention.Enabled {
			collector, err := retention.NewCollector(a.store, cfg.Retention)
			if err != nil {
				return fmt.Errorf("创建 retention 任务失败: %w", err)
			}
			g.Go(func() error {
				return collector.Run(gctx)
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "MongoAgent 已启动，监听 %s。按 Ctrl+C 停止。\n", srvCfg.Addr)
		if err := g.Wait(); err != nil {
			return fmt.Errorf("服务异常退出: %w", err)
		}
		logx.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址（覆盖 server.addr）")
}
