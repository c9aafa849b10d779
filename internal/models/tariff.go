package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TariffInfo describes one priced report package.
// Price is in minor units (kopecks).
type TariffInfo struct {
	Code            Tariff `yaml:"code" json:"code"`
	Title           string `yaml:"title" json:"title"`
	Description     string `yaml:"description" json:"description"`
	MinParticipants int    `yaml:"min_participants" json:"min_participants"`
	MaxParticipants int    `yaml:"max_participants" json:"max_participants"`
	Price           int64  `yaml:"price" json:"price"`
	Stars           int    `yaml:"stars" json:"stars"`
}

// FixedCount reports whether the participant count follows from the tariff alone.
func (t TariffInfo) FixedCount() bool {
	return t.MinParticipants == t.MaxParticipants
}

// StarsPrice is the Telegram Stars amount; 1 RUB = 1 star unless overridden.
func (t TariffInfo) StarsPrice() int {
	if t.Stars > 0 {
		return t.Stars
	}
	return int(t.Price / 100)
}

// Catalog holds tariffs in display order.
type Catalog struct {
	tariffs []TariffInfo
	byCode  map[Tariff]TariffInfo
}

func NewCatalog(tariffs []TariffInfo) *Catalog {
	c := &Catalog{byCode: make(map[Tariff]TariffInfo, len(tariffs))}
	for _, t := range tariffs {
		if _, dup := c.byCode[t.Code]; dup {
			continue
		}
		c.tariffs = append(c.tariffs, t)
		c.byCode[t.Code] = t
	}
	return c
}

// DefaultCatalog is the built-in price list.
func DefaultCatalog() *Catalog {
	return NewCatalog([]TariffInfo{
		{Code: TariffQuick, Title: "Быстрый анализ", Description: "Краткий разбор ключевых чисел", MinParticipants: 1, MaxParticipants: 1, Price: 500_00},
		{Code: TariffDeep, Title: "Глубокий анализ", Description: "Подробный разбор личности и жизненного пути", MinParticipants: 1, MaxParticipants: 1, Price: 1500_00},
		{Code: TariffPair, Title: "Парный анализ", Description: "Совместимость двух людей", MinParticipants: 2, MaxParticipants: 2, Price: 2000_00},
		{Code: TariffFamily, Title: "Семейный анализ", Description: "Разбор семьи от 3 до 5 человек", MinParticipants: 3, MaxParticipants: 5, Price: 3000_00},
	})
}

func (c *Catalog) Lookup(code Tariff) (TariffInfo, bool) {
	t, ok := c.byCode[code]
	return t, ok
}

func (c *Catalog) All() []TariffInfo {
	out := make([]TariffInfo, len(c.tariffs))
	copy(out, c.tariffs)
	return out
}

// WithPrices returns a copy with prices (whole rubles) and star prices replaced.
func (c *Catalog) WithPrices(prices map[Tariff]int64, stars map[Tariff]int) *Catalog {
	next := make([]TariffInfo, 0, len(c.tariffs))
	for _, t := range c.tariffs {
		if p, ok := prices[t.Code]; ok && p > 0 {
			t.Price = p * 100
		}
		if s, ok := stars[t.Code]; ok && s > 0 {
			t.Stars = s
		}
		next = append(next, t)
	}
	return NewCatalog(next)
}

// RoleFor assigns a participant role by position within the tariff.
func RoleFor(tariff Tariff, position int) ParticipantRole {
	switch {
	case position == 0:
		return RoleMain
	case tariff == TariffPair:
		return RolePartner
	default:
		return RoleFamilyMember
	}
}

// AmountDecimal converts minor units into a decimal amount.
func AmountDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatAmount renders minor units for humans, e.g. "1500 RUB" or "1500.50 RUB".
func FormatAmount(minor int64, currency string) string {
	d := AmountDecimal(minor)
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(0) + " " + currency
	}
	return d.StringFixed(2) + " " + currency
}

// ParseAmount converts a decimal string like "1500.00" into minor units.
func ParseAmount(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	minor := d.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	return minor.IntPart(), nil
}
