// Package translate 负责语言检测，以及用户语言与枢轴语言（英语）之间的互译。
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/llm"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

// Pivot 是所有 LLM 阶段使用的枢轴语言。
const Pivot = "en"

// Languages 是常用语言代码到英文名称的映射。
var Languages = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
	"hi": "Hindi",
	"bn": "Bengali",
	"ur": "Urdu",
}

type Language struct {
	Code       string  `json:"language_code"`
	Name       string  `json:"language_name"`
	Confidence float64 `json:"confidence"`
}

// PivotLanguage 返回枢轴语言描述。
func PivotLanguage() Language {
	return Language{Code: Pivot, Name: Languages[Pivot], Confidence: 1}
}

// Translator 是无副作用的检测与翻译服务。
type Translator interface {
	Detect(ctx context.Context, text string) (Language, error)
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// IsPivot 判断语言代码是否为英语（大小写不敏感）。
func IsPivot(code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "en", "eng", "english":
		return true
	}
	return false
}

// SameLanguage 判断两个语言代码或名称是否指向同一语言。
func SameLanguage(a, b string) bool {
	if IsPivot(a) && IsPivot(b) {
		return true
	}
	return strings.EqualFold(normalize(a), normalize(b))
}

// NameOf 返回语言代码对应的名称；未知代码原样返回。
func NameOf(code string) string {
	if name, ok := Languages[normalize(code)]; ok {
		return name
	}
	return code
}

func normalize(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	for k, name := range Languages {
		if strings.EqualFold(name, c) {
			return k
		}
	}
	if i := strings.IndexAny(c, "-_"); i > 0 {
		c = c[:i]
	}
	return c
}

const detectSystemPrompt = `You are a language detection specialist. Your task is to identify the language of the given text.
Respond with a JSON containing:
- language_code: ISO 639-1 language code (2 letters like 'en', 'es', 'fr')
- language_name: Full name of the language in English
- confidence: Your confidence level from 0.0 to 1.0

Only respond with valid JSON. For example:
{"language_code": "en", "language_name": "English", "confidence": 0.98}`

const translateSystemPrompt = `You are a professional translator.
Translate the provided text from {{.source}} to {{.target}}.
Maintain the original meaning, tone, numbers, names and formatting.
Respond only with the translated text, nothing else.`

// LLMTranslator 通过 ChatModel 完成检测与翻译。
type LLMTranslator struct {
	model        model.BaseChatModel
	detectTpl    prompt.ChatTemplate
	translateTpl prompt.ChatTemplate
}

var _ Translator = (*LLMTranslator)(nil)

func NewLLMTranslator(cm model.BaseChatModel) *LLMTranslator {
	return &LLMTranslator{
		model: cm,
		detectTpl: prompt.FromMessages(schema.GoTemplate,
			schema.SystemMessage(detectSystemPrompt),
			schema.UserMessage("Detect the language of this text: {{.text}}"),
		),
		translateTpl: prompt.FromMessages(schema.GoTemplate,
			schema.SystemMessage(translateSystemPrompt),
			schema.UserMessage("Translate this text: {{.text}}"),
		),
	}
}

func (t *LLMTranslator) Detect(ctx context.Context, text string) (Language, error) {
	if strings.TrimSpace(text) == "" {
		return Language{}, errx.Newf(errx.KindTranslation, "cannot detect the language of empty text")
	}

	msgs, err := t.detectTpl.Format(ctx, map[string]any{"text": text})
	if err != nil {
		return Language{}, errx.New(errx.KindInternal, err, "failed to render detection prompt")
	}
	out, err := t.model.Generate(ctx, msgs, model.WithTemperature(0))
	if err != nil {
		return Language{}, errx.New(errx.KindTranslation, err, "language detection failed")
	}

	var lang Language
	if err := llm.DecodeJSON(out.Content, &lang); err != nil {
		return Language{}, errx.New(errx.KindTranslation, err, "language detection returned an unreadable answer")
	}
	lang.Code = normalize(lang.Code)
	if lang.Code == "" {
		return Language{}, errx.Newf(errx.KindTranslation, "language detection returned no language code")
	}
	if lang.Name == "" {
		lang.Name = NameOf(lang.Code)
	}
	logx.Debug().Str("language", lang.Code).Float64("confidence", lang.Confidence).Msg("language detected")
	return lang, nil
}

// Translate 在源语言与目标语言相同或文本为空时直接返回原文，不调用 LLM。
func (t *LLMTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || SameLanguage(source, target) {
		return text, nil
	}

	msgs, err := t.translateTpl.Format(ctx, map[string]any{
		"text":   text,
		"source": NameOf(source),
		"target": NameOf(target),
	})
	if err != nil {
		return "", errx.New(errx.KindInternal, err, "failed to render translation prompt")
	}
	out, err := t.model.Generate(ctx, msgs, model.WithTemperature(0.1))
	if err != nil {
		return "", errx.New(errx.KindTranslation, err, fmt.Sprintf("translation to %s failed", NameOf(target)))
	}
	translated := strings.TrimSpace(out.Content)
	if translated == "" {
		return "", errx.Newf(errx.KindTranslation, "translation to %s returned nothing", NameOf(target))
	}
	return translated, nil
}
