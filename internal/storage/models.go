package storage

import "time"

const (
	AuditStatusRunning = "running"
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditRecord 记录一次数据库操作（工具执行）及其结果，用于审计与追溯。
//
// 一条记录对应 Tool Registry 中一个操作的一次执行（例如 find / insert_one）。
// 入参与结果统一以 JSON 字符串存放，超长内容在写入前截断。
type AuditRecord struct {
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一次对话轮次，与 TurnRecord.TraceID 对应。
	TraceID string `gorm:"size:64;index"`
	// Action 为操作名（Tool Registry 中的名称）。
	Action string `gorm:"size:128;not null;index"`
	// Mutating 标记写操作（insert/update/delete/index 变更）。
	Mutating   bool   `gorm:"not null;default:false"`
	ParamsJSON string `gorm:"type:text"`
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status string `gorm:"size:32;not null;index"`
	// ErrorKind 为失败时的错误分类（errx.Kind）。
	ErrorKind    string    `gorm:"size:64;index"`
	ErrorMessage string    `gorm:"type:text"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime;index"`
}

// TurnRecord 记录一次完整的对话轮次（用户消息 -> 最终回复）。
type TurnRecord struct {
	ID             uint64 `gorm:"primaryKey"`
	TraceID        string `gorm:"size:64;index"`
	ConversationID string `gorm:"size:64;index"`
	// Language 为检测到的用户原始语言代码。
	Language string `gorm:"size:16"`
	Intent   string `gorm:"size:32;not null;index"`
	// Operation 仅在业务查询路径上有值。
	Operation string `gorm:"size:128;index"`
	// Outcome 为 success 或错误分类（errx.Kind）。
	Outcome     string `gorm:"size:64;index"`
	UserMessage string `gorm:"type:text"`
	Response    string `gorm:"type:text"`
	// Path 为本轮经过的节点，逗号分隔。
	Path       string    `gorm:"type:text"`
	DurationMS int64     `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime;index"`
}
