package view

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestFormatRupees(t *testing.T) {
	assert.Equal(t, "1,000.00", FormatRupees(decimal.NewFromInt(1000)))
	assert.Equal(t, "99.50", FormatRupees(decimal.RequireFromString("99.499")))
	assert.Equal(t, "0.00", FormatRupees(decimal.Zero))
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	_, err = engine.RenderBytes("missing", TemplateData{})
	assert.Error(t, err)

	var nilEngine *Engine
	_, err = nilEngine.RenderBytes("invoices/print", TemplateData{})
	assert.Error(t, err)
}
