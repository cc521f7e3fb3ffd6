// Package history 按会话保存跨轮次的消息历史。
package history

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Repository 保存用户可见的消息（用户原始语言）。
type Repository interface {
	AddMessages(ctx context.Context, conversationID string, msgs ...*schema.Message) error
	// LoadHistory 返回最近 limit 条消息（按时间正序）；limit <= 0 返回全部。
	LoadHistory(ctx context.Context, conversationID string, limit int) ([]*schema.Message, error)
	ClearHistory(ctx context.Context, conversationID string) error
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// MemoryRepository 是未配置 Redis 时使用的进程内实现。
type MemoryRepository struct {
	mu          sync.RWMutex
	data        map[string][]*schema.Message
	maxMessages int
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository maxMessages <= 0 表示不裁剪。
func NewMemoryRepository(maxMessages int) *MemoryRepository {
	return &MemoryRepository{data: map[string][]*schema.Message{}, maxMessages: maxMessages}
}

func (r *MemoryRepository) AddMessages(_ context.Context, conversationID string, msgs ...*schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.data[conversationID]
	for _, m := range msgs {
		if m == nil {
			continue
		}
		cp := *m
		list = append(list, &cp)
	}
	if r.maxMessages > 0 && len(list) > r.maxMessages {
		list = append([]*schema.Message(nil), list[len(list)-r.maxMessages:]...)
	}
	r.data[conversationID] = list
	return nil
}

func (r *MemoryRepository) LoadHistory(_ context.Context, conversationID string, limit int) ([]*schema.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.data[conversationID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]*schema.Message, 0, len(list))
	for _, m := range list {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) ClearHistory(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, conversationID)
	return nil
}

func (r *MemoryRepository) GetMessageCount(_ context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data[conversationID]), nil
}
