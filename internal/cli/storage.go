package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/MongoAgent/internal/retention"
	"github.com/wwwzy/MongoAgent/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理本地存储",
	Long:  `查看审计记录与对话轮次的数量，或按保留策略立即清理旧记录。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	RunE:  runInfo,
}

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "立即按保留策略清理旧记录",
	Long: `忽略定时任务间隔，立即执行一次清理。
默认读取配置文件中的 retention 策略；--days 可临时覆盖审计与轮次记录的保留天数。`,
	RunE: runPrune,
}

var pruneDays int

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd)
	storageCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "保留最近 N 天的记录（覆盖配置）")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	policy := cfg.Retention
	if pruneDays > 0 {
		keep := time.Duration(pruneDays) * 24 * time.Hour
		policy.AuditKeep = keep
		policy.TurnKeep = keep
	}
	if policy.AuditKeep <= 0 && policy.TurnKeep <= 0 {
		return fmt.Errorf("保留策略为永久保留，无需清理（可使用 --days 指定）")
	}

	fmt.Fprintln(out, "Opening database...")
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	collector, err := retention.NewCollector(store, policy)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Policy: audit keep=%s, turn keep=%s\n", keepString(policy.AuditKeep), keepString(policy.TurnKeep))
	res, err := collector.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	fmt.Fprintf(out, "Prune completed. Deleted %d audit records and %d turn records.\n", res.AuditRecords, res.TurnRecords)

	if info, err := store.Info(ctx); err == nil {
		fmt.Fprintf(out, "Remaining: %d audit records, %d turn records\n", info.AuditRecords, info.TurnRecords)
	}
	return nil
}

func keepString(d time.Duration) string {
	if d <= 0 {
		return "forever"
	}
	return d.String()
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if cfg.Storage.InMemory {
		fmt.Fprintln(out, "Database File: (in-memory)")
		return nil
	}

	// 1. 获取数据库文件信息
	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	stat, err := os.Stat(dbPath)
	switch {
	case os.IsNotExist(err):
		// 不创建空库
		fmt.Fprintf(out, "Database File: Not Found (%s, will be created on first run)\n", dbPath)
		return nil
	case err != nil:
		dbSizeStr = fmt.Sprintf("Error: %v", err)
	default:
		sizeMB := float64(stat.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	// 2. 连接数据库
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(out, "Database File: %s\n", dbSizeStr)
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	// 3. 获取统计信息
	info, err := store.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database File: %s\n\n", dbSizeStr)
	return writeInfo(out, info)
}

func writeInfo(out io.Writer, info storage.Info) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "AuditRecords\t%d\n", info.AuditRecords)
	fmt.Fprintf(w, "TurnRecords\t%d\n", info.TurnRecords)
	if info.OldestTurn != nil {
		fmt.Fprintf(w, "\nOldest turn:\t%s\n", info.OldestTurn.Local().Format(time.RFC3339))
	}
	return w.Flush()
}
