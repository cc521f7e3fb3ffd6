package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	assert.Equal(t, Production, ParseEnvironment("production"))
	assert.Equal(t, Production, ParseEnvironment(" PRODUCTION "))
	assert.Equal(t, Testing, ParseEnvironment("testing"))
	assert.Equal(t, Development, ParseEnvironment(""))
	assert.Equal(t, Development, ParseEnvironment("staging"))
	assert.True(t, Production.IsProduction())
	assert.False(t, Development.IsProduction())
}

func TestTraceIDContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-42")
	assert.Equal(t, "trace-42", GetTraceID(ctx))
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestOrNewID(t *testing.T) {
	assert.Equal(t, "given", OrNewID("given"))
	a, b := OrNewID(""), OrNewID("")
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestCutUTF8(t *testing.T) {
	assert.Equal(t, "short", CutUTF8("short", 10))
	assert.Equal(t, "", CutUTF8("abc", 0))
	// "é" 占两个字节，切点落在其中间时退回到字符开头
	assert.Equal(t, "caf", CutUTF8("café", 4))
	assert.Equal(t, "café", CutUTF8("café!", 5))
	assert.Equal(t, "日", CutUTF8("日本語", 5))
}
