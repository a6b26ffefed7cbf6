package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := GetEstimator()
	assert.Same(t, e, GetEstimator())

	assert.Equal(t, 0, e.CountTokens(""))
	assert.Greater(t, e.CountTokens("Hello, world"), 0)
	assert.Greater(t, e.CountTokens("一段比较长的中文文本，用来估算 token 数量"), e.CountTokens("中文"))
}

func TestEstimator_EstimateUsage(t *testing.T) {
	e := GetEstimator()
	u := e.EstimateUsage([]string{"You are helpful.", "Hi"}, "Hello there")

	assert.True(t, u.Estimated)
	assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
	assert.GreaterOrEqual(t, u.PromptTokens, replyPriming+2*perMessageOverhead)
	assert.Equal(t, e.CountTokens("Hello there"), u.CompletionTokens)
}

func TestEstimator_Heuristic(t *testing.T) {
	e := &Estimator{}
	assert.Equal(t, "heuristic", e.Method())
	assert.Equal(t, 2, e.CountTokens("12345678"))
	assert.Equal(t, 1, e.CountTokens("a"))
}
