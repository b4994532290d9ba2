package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	t.Run("Bare Object", func(t *testing.T) {
		out, ok := ExtractJSON(`{"p_success": 0.6}`)
		assert.True(t, ok)
		assert.Equal(t, `{"p_success": 0.6}`, out)
	})

	t.Run("Fenced With Language Tag", func(t *testing.T) {
		raw := "说明文字\n```json\n{\"p_success\": 0.6, \"ev_r\": 1.2}\n```\n收尾"
		out, ok := ExtractJSON(raw)
		assert.True(t, ok)
		assert.Equal(t, `{"p_success": 0.6, "ev_r": 1.2}`, out)
	})

	t.Run("Fenced Without Language Tag", func(t *testing.T) {
		out, ok := ExtractJSON("```\n{\"a\":1}\n```")
		assert.True(t, ok)
		assert.Equal(t, `{"a":1}`, out)
	})

	t.Run("Object With Surrounding Prose", func(t *testing.T) {
		out, ok := ExtractJSON(`结果如下 {"a": {"b": 1}} 完毕`)
		assert.True(t, ok)
		assert.Equal(t, `{"a": {"b": 1}}`, out)
	})

	t.Run("Braces Inside String Literal", func(t *testing.T) {
		out, ok := ExtractJSON(`{"note": "含 } 与 { 的文本", "x": 1}`)
		assert.True(t, ok)
		assert.Equal(t, `{"note": "含 } 与 { 的文本", "x": 1}`, out)
	})

	t.Run("Array", func(t *testing.T) {
		out, ok := ExtractJSON("前缀 [1, 2, 3] 后缀")
		assert.True(t, ok)
		assert.Equal(t, "[1, 2, 3]", out)
	})

	t.Run("Unbalanced Fails", func(t *testing.T) {
		_, ok := ExtractJSON(`{"a": 1`)
		assert.False(t, ok)
	})

	t.Run("Empty Fails", func(t *testing.T) {
		_, ok := ExtractJSON("   ")
		assert.False(t, ok)
	})

	t.Run("No JSON Fails", func(t *testing.T) {
		_, ok := ExtractJSON("plain text only")
		assert.False(t, ok)
	})
}

func TestPretty(t *testing.T) {
	t.Run("Indents Valid JSON", func(t *testing.T) {
		assert.Equal(t, "{\n  \"a\": 1\n}", Pretty(`{"a":1}`))
	})

	t.Run("Invalid Passes Through", func(t *testing.T) {
		assert.Equal(t, "not json", Pretty("not json"))
	})

	t.Run("Empty Passes Through", func(t *testing.T) {
		assert.Equal(t, "", Pretty("  "))
	})
}
