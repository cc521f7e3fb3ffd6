package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultBusyTimeout = 5 * time.Second

// Config 为本地 SQLite 存储配置，保存审计记录与对话轮次记录。
type Config struct {
	Path            string           `mapstructure:"path" yaml:"path"`
	InMemory        bool             `mapstructure:"in_memory" yaml:"in_memory"`
	EnableWAL       bool             `mapstructure:"enable_wal" yaml:"enable_wal"`
	BusyTimeout     time.Duration    `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	MaxOpenConns    int              `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int              `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	Logger          logger.Interface `mapstructure:"-" yaml:"-"`
}

type Storage struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// models 为需要自动迁移的表。
func models() []any {
	return []any{&AuditRecord{}, &TurnRecord{}}
}

// Open 打开（必要时创建）数据库，完成迁移并确认连接可用。
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	gormLogger := cfg.Logger
	if gormLogger == nil {
		gormLogger = logger.Discard
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	tunePool(sqlDB, cfg)

	s := &Storage{db: db, sqlDB: sqlDB}
	steps := []func(context.Context) error{s.Migrate, s.Ping}
	if cfg.EnableWAL {
		steps = append([]func(context.Context) error{s.enableWAL}, steps...)
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func tunePool(db *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func (s *Storage) enableWAL(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return errNotInitialized
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Info 汇总存储中的记录数量，供 `storage info` 展示。
type Info struct {
	AuditRecords int64
	TurnRecords  int64
	OldestTurn   *time.Time
}

func (s *Storage) Info(ctx context.Context) (Info, error) {
	if err := s.ready(); err != nil {
		return Info{}, err
	}

	var info Info
	counts := []struct {
		model any
		what  string
		dst   *int64
	}{
		{&AuditRecord{}, "audit records", &info.AuditRecords},
		{&TurnRecord{}, "turn records", &info.TurnRecords},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(c.model).Count(c.dst).Error; err != nil {
			return Info{}, fmt.Errorf("count %s: %w", c.what, err)
		}
	}

	if info.TurnRecords > 0 {
		var oldest TurnRecord
		if err := s.db.WithContext(ctx).Order("created_at ASC").Limit(1).Find(&oldest).Error; err != nil {
			return Info{}, fmt.Errorf("oldest turn record: %w", err)
		}
		info.OldestTurn = &oldest.CreatedAt
	}
	return info, nil
}

func dsnFromConfig(cfg Config) (string, error) {
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}
	pragma := fmt.Sprintf("_pragma=busy_timeout(%d)", timeout.Milliseconds())

	switch {
	case cfg.InMemory:
		return "file:mongoagent?mode=memory&cache=shared&" + pragma, nil
	case cfg.Path == "":
		return "", errors.New("sqlite path is required when in_memory is false")
	default:
		return "file:" + cfg.Path + "?" + pragma, nil
	}
}
