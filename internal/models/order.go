package models

import "time"

// Order is the durable source of truth for the fulfillment pipeline.
// TelegramID is not a column of orders; queries fill it from users.
type Order struct {
	ID                int64         `db:"id" json:"id"`
	ExternalID        string        `db:"external_id" json:"external_id"`
	UserID            int64         `db:"user_id" json:"user_id"`
	TelegramID        int64         `db:"telegram_id" json:"telegram_id"`
	Tariff            Tariff        `db:"tariff" json:"tariff"`
	Style             Style         `db:"style" json:"style"`
	Status            OrderStatus   `db:"status" json:"status"`
	Amount            int64         `db:"amount" json:"amount"`
	Currency          string        `db:"currency" json:"currency"`
	PaymentMethod     PaymentMethod `db:"payment_method" json:"payment_method,omitempty"`
	PaymentRef        string        `db:"payment_ref" json:"payment_ref,omitempty"`
	GenerationTaskRef string        `db:"generation_task_ref" json:"generation_task_ref,omitempty"`
	ArtifactPath      string        `db:"artifact_path" json:"artifact_path,omitempty"`
	FailureReason     string        `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	PaidAt            *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// ShortID is the prefix shown to users and accepted by /download.
func (o *Order) ShortID() string {
	if len(o.ExternalID) <= 8 {
		return o.ExternalID
	}
	return o.ExternalID[:8]
}

type Participant struct {
	ID         int64           `db:"id" json:"id"`
	OrderID    int64           `db:"order_id" json:"order_id"`
	Position   int             `db:"position" json:"position"`
	Role       ParticipantRole `db:"role" json:"role"`
	FullName   string          `db:"full_name" json:"full_name"`
	BirthDate  time.Time       `db:"birth_date" json:"birth_date"`
	BirthTime  *string         `db:"birth_time" json:"birth_time,omitempty"`
	BirthPlace *string         `db:"birth_place" json:"birth_place,omitempty"`
}

// GenerationAttempt is one dispatch to a report provider.
type GenerationAttempt struct {
	ID        int64         `db:"id" json:"id"`
	OrderID   int64         `db:"order_id" json:"order_id"`
	Provider  string        `db:"provider" json:"provider"`
	TaskRef   string        `db:"task_ref" json:"task_ref,omitempty"`
	Status    AttemptStatus `db:"status" json:"status"`
	Error     *string       `db:"error" json:"error,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

type Review struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderDraft is what the conversation produces on reaching awaiting_payment.
type OrderDraft struct {
	TelegramID   int64
	Tariff       Tariff
	Style        Style
	Amount       int64
	Currency     string
	Participants []Participant
}

// OrderDetails bundles an order with everything it owns.
type OrderDetails struct {
	Order        *Order               `json:"order"`
	Participants []*Participant       `json:"participants"`
	Attempts     []*GenerationAttempt `json:"attempts"`
	Review       *Review              `json:"review,omitempty"`
}
