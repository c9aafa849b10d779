// Package export builds xlsx reports over orders.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Заказы"

var headers = []string{
	"ID", "Номер", "Telegram ID", "Тариф", "Стиль", "Статус",
	"Сумма", "Оплата", "Создан", "Оплачен", "Выполнен", "Причина сбоя",
}

// Orders renders orders created in [from, to) into an xlsx workbook.
func Orders(orders []*models.Order, catalog *models.Catalog, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	styles := make(map[models.OrderStatus]int)
	for i, o := range orders {
		row := i + 3
		values := []any{
			o.ID,
			o.ExternalID,
			o.TelegramID,
			tariffTitle(catalog, o.Tariff),
			o.Style.Title(),
			o.Status.Emoji() + " " + string(o.Status),
			models.FormatAmount(o.Amount, o.Currency),
			string(o.PaymentMethod),
			o.CreatedAt.Format("02.01.2006 15:04"),
			formatTime(o.PaidAt),
			formatTime(o.CompletedAt),
			o.FailureReason,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		style, ok := styles[o.Status]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{statusColor(o.Status)}, Pattern: 1},
			})
			if err != nil {
				return nil, fmt.Errorf("error creating style: %w", err)
			}
			styles[o.Status] = style
		}
		cell, _ := excelize.CoordinatesToCellName(6, row)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 38)
	_ = f.SetColWidth(sheetName, "C", lastCol, 18)

	_ = f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName is the download name for an export over [from, to).
func FileName(from, to time.Time) string {
	return fmt.Sprintf("orders_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Save keeps a copy of the export in dir and returns its path.
func Save(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func tariffTitle(catalog *models.Catalog, t models.Tariff) string {
	if catalog != nil {
		if info, ok := catalog.Lookup(t); ok {
			return info.Title
		}
	}
	return string(t)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}

func statusColor(s models.OrderStatus) string {
	switch s {
	case models.OrderCompleted:
		return "#C6EFCE"
	case models.OrderFailed, models.OrderRefunded:
		return "#FFC7CE"
	case models.OrderPending:
		return "#FFFFFF"
	default:
		return "#FFEB9C"
	}
}
