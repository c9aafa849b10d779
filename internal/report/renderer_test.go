package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() (*models.Order, []*models.Participant) {
	created := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	born, _ := time.Parse(models.BirthDateLayout, "01.02.1990")
	bt := "09:05"
	order := &models.Order{
		ID:         1,
		ExternalID: "0f8fad5b-d9cb-469f-a165-70867728950e",
		Tariff:     models.TariffQuick,
		Style:      models.StyleAnalytical,
		CreatedAt:  created,
	}
	return order, []*models.Participant{{Role: models.RoleMain, FullName: "Anna", BirthDate: born, BirthTime: &bt}}
}

func TestRender(t *testing.T) {
	r := NewRenderer(config.ReportConfig{Title: "Report"}, models.DefaultCatalog())
	order, participants := testOrder()

	out, err := r.Render(order, participants, "First paragraph.\n\nSecond paragraph.")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer(config.ReportConfig{Title: "Report"}, models.DefaultCatalog())
	order, participants := testOrder()

	first, err := r.Render(order, participants, "Text")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := r.Render(order, participants, "Text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_EmptyText(t *testing.T) {
	r := NewRenderer(config.ReportConfig{Title: "Report"}, models.DefaultCatalog())
	order, participants := testOrder()
	_, err := r.Render(order, participants, "  \n ")
	assert.Error(t, err)
}

func TestRender_MissingFont(t *testing.T) {
	r := NewRenderer(config.ReportConfig{Title: "Report", FontPath: "/nonexistent/font.ttf"}, models.DefaultCatalog())
	order, participants := testOrder()
	_, err := r.Render(order, participants, "Text")
	assert.Error(t, err)
}

func TestParagraphs(t *testing.T) {
	assert.Equal(t, []string{"a", "b\nc"}, paragraphs("a\r\n\r\n\n\nb\nc\n\n  "))
}
