package export

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestOrders(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	completed := from.Add(2 * time.Hour)

	orders := []*models.Order{
		{ID: 1, ExternalID: "aaaa-1", TelegramID: 10, Tariff: models.TariffPair, Style: models.StyleShamanic,
			Status: models.OrderCompleted, Amount: 2000_00, Currency: models.CurrencyRUB,
			PaymentMethod: models.PaymentTelegramStars, CreatedAt: from, CompletedAt: &completed},
		{ID: 2, ExternalID: "bbbb-2", TelegramID: 11, Tariff: models.TariffQuick, Style: models.StyleAnalytical,
			Status: models.OrderFailed, Amount: 500_00, Currency: models.CurrencyRUB,
			CreatedAt: from.Add(time.Hour), FailureReason: "provider timeout"},
	}

	data, err := Orders(orders, models.DefaultCatalog(), from, to)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Contains(t, rows[0][0], "01.06.2025")
	assert.Equal(t, headers, rows[1])
	assert.Equal(t, "aaaa-1", rows[2][1])
	assert.Equal(t, "Парный анализ", rows[2][3])
	assert.Equal(t, "2000 RUB", rows[2][6])
	assert.Equal(t, "provider timeout", rows[3][11])
}

func TestOrders_Empty(t *testing.T) {
	now := time.Now()
	data, err := Orders(nil, nil, now, now)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	name := FileName(from, from.AddDate(0, 0, 30))
	assert.Equal(t, "orders_2025-06-01_to_2025-07-01.xlsx", name)

	path, err := Save(dir+"/exports", name, []byte("xlsx"))
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), got)
}
