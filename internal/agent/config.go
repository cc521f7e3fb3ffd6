package agent

import "time"

type Config struct {
	// HistoryWindow 为传给 LLM 阶段的历史消息条数。
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window" validate:"gte=0"`
	// LLMTimeout 约束每一次 LLM 调用（检测、翻译、分类、解析、格式化）。
	LLMTimeout time.Duration `mapstructure:"llm_timeout" yaml:"llm_timeout"`
	// MinLanguageConfidence 低于该值时按枢轴语言处理。
	MinLanguageConfidence float64 `mapstructure:"min_language_confidence" yaml:"min_language_confidence" validate:"gte=0,lte=1"`
	// Collections 为集合白名单；为空不限制。
	Collections []string `mapstructure:"collections" yaml:"collections"`
	MaxRunSteps int      `mapstructure:"max_run_steps" yaml:"max_run_steps" validate:"gte=0"`
	// ReadRetryDelay 为只读操作在连接失败后重试前的等待时间。
	ReadRetryDelay time.Duration `mapstructure:"read_retry_delay" yaml:"read_retry_delay"`
	// SummaryMaxChars 限制交给格式化 LLM 的结果 JSON 长度。
	SummaryMaxChars int `mapstructure:"summary_max_chars" yaml:"summary_max_chars" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		HistoryWindow:         10,
		LLMTimeout:            30 * time.Second,
		MinLanguageConfidence: 0.5,
		MaxRunSteps:           20,
		ReadRetryDelay:        200 * time.Millisecond,
		SummaryMaxChars:       8000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistoryWindow < 0 {
		c.HistoryWindow = 0
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	if c.MaxRunSteps <= 0 {
		c.MaxRunSteps = d.MaxRunSteps
	}
	if c.ReadRetryDelay < 0 {
		c.ReadRetryDelay = 0
	}
	if c.SummaryMaxChars <= 0 {
		c.SummaryMaxChars = d.SummaryMaxChars
	}
	return c
}
