package models

import "time"

// SessionStep is a conversational state. Sessions are short-lived and are
// never the source of truth once an order reaches awaiting_payment.
type SessionStep string

const (
	StepCollectingTariff SessionStep = "collecting_tariff"
	StepCollectingCount  SessionStep = "collecting_participant_count"
	StepFullName         SessionStep = "participant_full_name"
	StepBirthDate        SessionStep = "participant_birth_date"
	StepBirthTime        SessionStep = "participant_birth_time"
	StepBirthPlace       SessionStep = "participant_birth_place"
	StepCollectingStyle  SessionStep = "collecting_style"
	StepAwaitingPayment  SessionStep = "awaiting_payment"
	StepCancelled        SessionStep = "cancelled"

	// StepReviewComment waits for an optional review comment.
	StepReviewComment SessionStep = "review_comment"
)

// Collecting reports whether the step belongs to the order collection phase.
func (s SessionStep) Collecting() bool {
	switch s {
	case StepCollectingTariff, StepCollectingCount, StepFullName, StepBirthDate,
		StepBirthTime, StepBirthPlace, StepCollectingStyle:
		return true
	default:
		return false
	}
}

// OptionalField separates an explicit skip (Entered, nil Value)
// from a value not entered yet (!Entered).
type OptionalField struct {
	Entered bool    `json:"entered"`
	Value   *string `json:"value,omitempty"`
}

func Skipped() OptionalField { return OptionalField{Entered: true} }

func Entered(v string) OptionalField { return OptionalField{Entered: true, Value: &v} }

type ParticipantDraft struct {
	FullName   string        `json:"full_name"`
	BirthDate  *time.Time    `json:"birth_date,omitempty"`
	BirthTime  OptionalField `json:"birth_time"`
	BirthPlace OptionalField `json:"birth_place"`
}

type Session struct {
	UserID           int64              `json:"user_id"`
	Step             SessionStep        `json:"step"`
	Tariff           Tariff             `json:"tariff,omitempty"`
	Style            Style              `json:"style,omitempty"`
	ParticipantCount int                `json:"participant_count"`
	Cursor           int                `json:"cursor"`
	Participants     []ParticipantDraft `json:"participants,omitempty"`
	ReviewOrderID    int64              `json:"review_order_id,omitempty"`
	StartedAt        time.Time          `json:"started_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Current returns the participant under the cursor, or nil.
func (s *Session) Current() *ParticipantDraft {
	if s.Cursor < 0 || s.Cursor >= len(s.Participants) {
		return nil
	}
	return &s.Participants[s.Cursor]
}

// Clone deep-copies the session so transitions never alias their input.
func (s Session) Clone() Session {
	out := s
	if s.Participants != nil {
		out.Participants = make([]ParticipantDraft, len(s.Participants))
		for i, p := range s.Participants {
			cp := p
			if p.BirthDate != nil {
				d := *p.BirthDate
				cp.BirthDate = &d
			}
			cp.BirthTime = cloneOptional(p.BirthTime)
			cp.BirthPlace = cloneOptional(p.BirthPlace)
			out.Participants[i] = cp
		}
	}
	return out
}

func cloneOptional(f OptionalField) OptionalField {
	if f.Value == nil {
		return f
	}
	v := *f.Value
	return OptionalField{Entered: f.Entered, Value: &v}
}
