// Package retention 定期清理过期的审计记录与轮次记录。
package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

type ErrorHandler func(err error)

type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Interval 为清理周期；启动时先执行一次。
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Workers 为并发清理任务数（审计表与轮次表各一个任务）。
	Workers int `mapstructure:"workers" yaml:"workers"`
	// BatchRows 为单次 DELETE 的最大行数，避免长时间持有 SQLite 写锁。
	BatchRows int `mapstructure:"batch_rows" yaml:"batch_rows"`
	// IdleSleep 为两批之间的间隔，给前台写入让出锁。
	IdleSleep time.Duration `mapstructure:"idle_sleep" yaml:"idle_sleep"`

	// AuditKeep / TurnKeep 为保留时长；<= 0 表示永久保留。
	AuditKeep time.Duration `mapstructure:"audit_keep" yaml:"audit_keep"`
	TurnKeep  time.Duration `mapstructure:"turn_keep" yaml:"turn_keep"`

	OnError ErrorHandler `mapstructure:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Interval:  time.Hour,
		Workers:   2,
		BatchRows: 500,
		IdleSleep: 50 * time.Millisecond,
		AuditKeep: 30 * 24 * time.Hour,
		TurnKeep:  30 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchRows <= 0 {
		c.BatchRows = 500
	}
	if c.OnError == nil {
		c.OnError = func(err error) {
			logx.Warn().Err(err).Msg("retention pass failed")
		}
	}
	return c
}

// Store 由 *storage.Storage 实现。
type Store interface {
	DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error)
	DeleteTurnRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Result 为一次清理删除的行数。
type Result struct {
	AuditRecords int64 `json:"audit_records"`
	TurnRecords  int64 `json:"turn_records"`
}

type Collector struct {
	cfg   Config
	store Store
}

func NewCollector(store Store, cfg Config) (*Collector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Collector{store: store, cfg: cfg.withDefaults()}, nil
}

// Run 阻塞直到 ctx 结束；单次清理失败只回调 OnError，不退出循环。
func (c *Collector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	c.pass(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.pass(ctx)
		}
	}
}

func (c *Collector) pass(ctx context.Context) {
	res, err := c.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.cfg.OnError(err)
		}
		return
	}
	if res.AuditRecords > 0 || res.TurnRecords > 0 {
		logx.Info().Int64("audit_records", res.AuditRecords).Int64("turn_records", res.TurnRecords).Msg("retention pass pruned records")
	}
}

// RunOnce 按保留策略清理早于 now-keep 的记录。
func (c *Collector) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	if c == nil || c.store == nil {
		return Result{}, errors.New("retention collector not initialized")
	}

	var audit, turns atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	if c.cfg.AuditKeep > 0 {
		cut := now.Add(-c.cfg.AuditKeep)
		g.Go(func() error {
			return c.deleteBefore(gctx, cut, c.store.DeleteAuditRecordsBeforeLimited, &audit)
		})
	}
	if c.cfg.TurnKeep > 0 {
		cut := now.Add(-c.cfg.TurnKeep)
		g.Go(func() error {
			return c.deleteBefore(gctx, cut, c.store.DeleteTurnRecordsBeforeLimited, &turns)
		})
	}

	err := g.Wait()
	return Result{AuditRecords: audit.Load(), TurnRecords: turns.Load()}, err
}

type deleteFunc func(ctx context.Context, before time.Time, limit int) (int64, error)

func (c *Collector) deleteBefore(ctx context.Context, before time.Time, del deleteFunc, total *atomic.Int64) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		affected, err := del(ctx, before, c.cfg.BatchRows)
		if err != nil {
			return err
		}
		total.Add(affected)
		if affected == 0 {
			return nil
		}
		if err := c.sleepIdle(ctx); err != nil {
			return err
		}
	}
}

func (c *Collector) sleepIdle(ctx context.Context) error {
	if c.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
