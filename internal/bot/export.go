package bot

import (
	"context"

	"github.com/adiga-code/numerology/internal/export"

	"github.com/rs/zerolog"
)

const exportDays = 30

// handleExport отправляет менеджеру xlsx с заказами за последние 30 дней
func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	to := b.now()
	from := to.AddDate(0, 0, -exportDays)

	orders, err := b.services.Orders.OrdersBetween(ctx, from, to)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to load orders for export")
		b.sendError(chatID, err)
		return
	}

	data, err := export.Orders(orders, b.catalog, from, to)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to build export")
		b.sendError(chatID, err)
		return
	}

	name := export.FileName(from, to)
	if dir := b.config.Bot.ExportPath; dir != "" {
		if path, err := export.Save(dir, name, data); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to keep export copy")
		} else {
			zerolog.Ctx(ctx).Info().Str("file_path", path).Int("orders", len(orders)).Msg("Excel file created")
		}
	}

	if _, err := b.tgService.SendDocument(chatID, name, data, "📊 Заказы за 30 дней"); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to send export")
		b.sendError(chatID, err)
	}
}
