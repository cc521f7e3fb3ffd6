package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/wwwzy/MongoAgent/internal/agent"
	"github.com/wwwzy/MongoAgent/internal/config"
	"github.com/wwwzy/MongoAgent/internal/history"
	"github.com/wwwzy/MongoAgent/internal/llm"
	"github.com/wwwzy/MongoAgent/internal/mongodb"
	"github.com/wwwzy/MongoAgent/internal/storage"
	"github.com/wwwzy/MongoAgent/internal/tools"
	"github.com/wwwzy/MongoAgent/internal/translate"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

// app 持有一次命令运行所需的全部组件。
type app struct {
	mongo    *mongodb.Client
	store    *storage.Storage
	registry *tools.Registry
	service  *agent.Service

	closers []func() error
}

// newApp 按依赖顺序组装：存储 -> MongoDB -> 工具注册表 -> 模型 -> 图 -> Service。
// 任一步失败时已打开的资源会被关闭。
func newApp(ctx context.Context, c *config.Config) (_ *app, err error) {
	if c == nil {
		return nil, errors.New("config not loaded")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = storage.Open(ctx, c.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.mongo, err = mongodb.Connect(ctx, c.Mongo)
	if err != nil {
		return nil, fmt.Errorf("连接 MongoDB 失败: %w", err)
	}
	a.closers = append(a.closers, func() error { return a.mongo.Close(context.Background()) })

	a.registry, err = newRegistry(a.mongo, a.store, c.Agent.Collections)
	if err != nil {
		return nil, err
	}

	cm, err := llm.NewChatModel(ctx, c.LLM)
	if err != nil {
		return nil, fmt.Errorf("初始化模型失败: %w", err)
	}

	stages, err := agent.DefaultStages(agent.Dependencies{
		Model:      cm,
		Translator: translate.NewLLMTranslator(cm),
		Registry:   a.registry,
		Config:     c.Agent,
	})
	if err != nil {
		return nil, fmt.Errorf("构建节点失败: %w", err)
	}

	hist, closeHist, err := history.Open(ctx, c.Redis)
	if err != nil {
		return nil, fmt.Errorf("连接会话历史失败: %w", err)
	}
	a.closers = append(a.closers, closeHist)

	a.service, err = agent.NewService(ctx, stages, c.Agent, hist, a.store)
	if err != nil {
		return nil, fmt.Errorf("构建 Agent Graph 失败: %w", err)
	}

	logx.Info().Str("database", c.Mongo.Database).Int("tools", len(a.registry.Names())).Msg("mongoagent ready")
	return a, nil
}

// newRegistry 注册 MongoDB 工具并挂上审计；store 为空时不审计。
func newRegistry(db tools.Database, store *storage.Storage, collections []string) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	if store != nil {
		reg.Use(tools.WithAudit(store))
	}
	if err := tools.RegisterMongoTools(reg, db); err != nil {
		return nil, fmt.Errorf("注册工具失败: %w", err)
	}
	reg.RestrictCollections(collections...)
	return reg, nil
}

// Close 逆序关闭资源。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
