package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/llm/llmtest"
)

func TestIsPivot(t *testing.T) {
	for _, code := range []string{"en", "EN", " eng ", "English"} {
		assert.True(t, IsPivot(code), code)
	}
	for _, code := range []string{"es", "", "engl", "zh"} {
		assert.False(t, IsPivot(code), code)
	}
}

func TestSameLanguage(t *testing.T) {
	assert.True(t, SameLanguage("en", "English"))
	assert.True(t, SameLanguage("es", "Spanish"))
	assert.True(t, SameLanguage("pt-BR", "pt"))
	assert.False(t, SameLanguage("es", "en"))
	assert.Equal(t, "Japanese", NameOf("ja"))
	assert.Equal(t, "tlh", NameOf("tlh"))
}

func TestTranslate_SameLanguageIsIdentity(t *testing.T) {
	fake := llmtest.NewChatModel()
	tr := NewLLMTranslator(fake)

	for _, lang := range []string{"en", "es", "zh"} {
		out, err := tr.Translate(context.Background(), "¿Cuántos usuarios hay?", lang, lang)
		require.NoError(t, err)
		assert.Equal(t, "¿Cuántos usuarios hay?", out)
	}
	out, err := tr.Translate(context.Background(), "", "es", "en")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, fake.Calls(""), "identity translation must not call the model")
}

func TestTranslate_CallsModel(t *testing.T) {
	fake := llmtest.NewChatModel().Reply("professional translator", "  How many users are there?  ")
	tr := NewLLMTranslator(fake)

	out, err := tr.Translate(context.Background(), "¿Cuántos usuarios hay?", "es", Pivot)
	require.NoError(t, err)
	assert.Equal(t, "How many users are there?", out)

	input := fake.LastInput("professional translator")
	require.Len(t, input, 2)
	assert.Contains(t, input[0].Content, "from Spanish to English")
	assert.Contains(t, input[1].Content, "¿Cuántos usuarios hay?")
}

func TestTranslate_Failures(t *testing.T) {
	tr := NewLLMTranslator(llmtest.NewChatModel().Fail("professional translator", errors.New("timeout")))
	_, err := tr.Translate(context.Background(), "hola", "es", "en")
	require.Error(t, err)
	assert.Equal(t, errx.KindTranslation, errx.KindOf(err))

	tr = NewLLMTranslator(llmtest.NewChatModel().Reply("professional translator", "   "))
	_, err = tr.Translate(context.Background(), "hola", "es", "en")
	require.Error(t, err)
	assert.Equal(t, errx.KindTranslation, errx.KindOf(err))
}

func TestDetect(t *testing.T) {
	fake := llmtest.NewChatModel().Reply("language detection specialist",
		"```json\n{\"language_code\": \"ES\", \"language_name\": \"Spanish\", \"confidence\": 0.97}\n```")
	tr := NewLLMTranslator(fake)

	lang, err := tr.Detect(context.Background(), "¿Cuántos usuarios hay?")
	require.NoError(t, err)
	assert.Equal(t, Language{Code: "es", Name: "Spanish", Confidence: 0.97}, lang)
}

func TestDetect_Failures(t *testing.T) {
	tests := []struct {
		name  string
		model *llmtest.ChatModel
		text  string
	}{
		{name: "empty text", model: llmtest.NewChatModel(), text: "  "},
		{name: "model error", model: llmtest.NewChatModel().Fail("language detection", errors.New("503")), text: "hola"},
		{name: "no json", model: llmtest.NewChatModel().Reply("language detection", "Spanish, probably"), text: "hola"},
		{name: "no code", model: llmtest.NewChatModel().Reply("language detection", `{"confidence": 0.4}`), text: "hola"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMTranslator(tt.model).Detect(context.Background(), tt.text)
			require.Error(t, err)
			assert.Equal(t, errx.KindTranslation, errx.KindOf(err))
		})
	}
}
