package models

type Tariff string

const (
	TariffQuick  Tariff = "quick"
	TariffDeep   Tariff = "deep"
	TariffPair   Tariff = "pair"
	TariffFamily Tariff = "family"
)

type Style string

const (
	StyleAnalytical Style = "analytical"
	StyleShamanic   Style = "shamanic"
)

func (s Style) Valid() bool {
	return s == StyleAnalytical || s == StyleShamanic
}

func (s Style) Title() string {
	switch s {
	case StyleAnalytical:
		return "Аналитический"
	case StyleShamanic:
		return "Шаманский"
	default:
		return string(s)
	}
}

// OrderStatus is the persisted pipeline state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderRefunded   OrderStatus = "refunded"
)

// Terminal reports whether the pipeline has nothing left to do for the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed || s == OrderRefunded
}

func (s OrderStatus) Emoji() string {
	switch s {
	case OrderPending:
		return "⏳"
	case OrderPaid:
		return "💳"
	case OrderProcessing:
		return "⚙️"
	case OrderCompleted:
		return "✅"
	case OrderFailed:
		return "❌"
	case OrderRefunded:
		return "↩️"
	default:
		return "❔"
	}
}

type PaymentMethod string

const (
	PaymentTelegramStars PaymentMethod = "telegram_stars"
	PaymentGateway       PaymentMethod = "yookassa"
)

type ParticipantRole string

const (
	RoleMain         ParticipantRole = "main"
	RolePartner      ParticipantRole = "partner"
	RoleFamilyMember ParticipantRole = "family_member"
)

type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

const (
	CurrencyRUB   = "RUB"
	CurrencyStars = "XTR"
)

const ParseModeMarkdown = "Markdown"

const (
	// BirthDateLayout формат ввода даты рождения (ДД.ММ.ГГГГ)
	BirthDateLayout = "02.01.2006"

	// BirthTimeLayout формат ввода времени рождения (ЧЧ:ММ)
	BirthTimeLayout = "15:04"

	// MaxTextFieldLength максимальная длина имени и места рождения в рунах
	MaxTextFieldLength = 200

	// MinRating и MaxRating границы оценки отзыва
	MinRating = 1
	MaxRating = 5
)
