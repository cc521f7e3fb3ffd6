package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wwwzy/MongoAgent/internal/config"
	"github.com/wwwzy/MongoAgent/internal/core"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "mongoagent",
	Short: "MongoAgent 是一个用自然语言操作 MongoDB 的多语言 AI 代理",
	Long: `MongoAgent 识别用户语言并翻译为英文，判断消息是闲聊还是业务查询，
业务查询会被解析为 MongoDB 操作并通过工具注册表执行，最后以用户的语言回答。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并适当设置标志。
// 这由 main.main() 调用。它只需要对 rootCmd 调用一次。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.mongoagent/config.yaml 搜索）")
}

// initConfig 读取 .env、配置文件和环境变量，并初始化日志。
// 这里不做校验：只读本地存储的命令不需要 MongoDB 与 LLM 配置。
func initConfig() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	var err error
	cfg, err = config.Read(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
}

// signalContext 在收到 SIGINT/SIGTERM 时取消。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
