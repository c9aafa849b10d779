// Package flow is the order collection state machine. It is pure: it never
// touches storage or the chat transport, it only maps (session, input) to the
// next session or a validation error that keeps the session unchanged.
package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adiga-code/numerology/internal/models"
)

type InputKind int

const (
	InputTariff InputKind = iota + 1
	InputText
	InputSkip
	InputStyle
	InputCancel
)

// Input is one user event: a button choice or a free-text message.
type Input struct {
	Kind  InputKind
	Value string
}

func Tariff(code models.Tariff) Input { return Input{Kind: InputTariff, Value: string(code)} }
func Text(v string) Input             { return Input{Kind: InputText, Value: v} }
func Skip() Input                     { return Input{Kind: InputSkip} }
func Style(s models.Style) Input      { return Input{Kind: InputStyle, Value: string(s)} }
func Cancel() Input                   { return Input{Kind: InputCancel} }

// ValidationError rejects an input; the session stays on Step.
type ValidationError struct {
	Step    models.SessionStep
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input at %s: %s", e.Step, e.Message)
}

var (
	// ErrNotCancellable is returned for cancel outside the collection phase.
	ErrNotCancellable = errors.New("order can no longer be cancelled")

	// ErrSessionClosed is returned for input to a session that left collection.
	ErrSessionClosed = errors.New("session is not collecting order data")

	ErrIncomplete = errors.New("session is not ready to become an order")
)

// Machine applies inputs using a tariff catalog and a clock.
type Machine struct {
	catalog *models.Catalog
	now     func() time.Time
}

func NewMachine(catalog *models.Catalog) *Machine {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	return &Machine{catalog: catalog, now: time.Now}
}

// WithClock overrides the clock used for birth date checks.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	return &Machine{catalog: m.catalog, now: now}
}

func (m *Machine) Catalog() *models.Catalog { return m.catalog }

// New starts a session. Storing it replaces whatever the user had before.
func (m *Machine) New(userID int64) models.Session {
	now := m.now()
	return models.Session{
		UserID:    userID,
		Step:      models.StepCollectingTariff,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Apply performs one transition. On error the returned session equals s.
func (m *Machine) Apply(s models.Session, in Input) (models.Session, error) {
	if in.Kind == InputCancel {
		if !s.Step.Collecting() {
			return s, ErrNotCancellable
		}
		next := s.Clone()
		next.Step = models.StepCancelled
		next.UpdatedAt = m.now()
		return next, nil
	}

	next := s.Clone()
	var err error
	switch s.Step {
	case models.StepCollectingTariff:
		err = m.applyTariff(&next, in)
	case models.StepCollectingCount:
		err = m.applyCount(&next, in)
	case models.StepFullName, models.StepBirthDate, models.StepBirthTime, models.StepBirthPlace:
		err = m.applyParticipant(&next, in)
	case models.StepCollectingStyle:
		err = applyStyle(&next, in)
	default:
		return s, ErrSessionClosed
	}
	if err != nil {
		return s, err
	}
	next.UpdatedAt = m.now()
	return next, nil
}

func (m *Machine) applyTariff(s *models.Session, in Input) error {
	if in.Kind != InputTariff {
		return reject(s.Step, "Выберите тариф с помощью кнопок ниже.")
	}
	info, ok := m.catalog.Lookup(models.Tariff(in.Value))
	if !ok {
		return reject(s.Step, "Такого тарифа нет. Выберите тариф с помощью кнопок ниже.")
	}

	s.Tariff = info.Code
	if info.FixedCount() {
		startParticipants(s, info.MinParticipants)
		return nil
	}
	s.Step = models.StepCollectingCount
	return nil
}

func (m *Machine) applyCount(s *models.Session, in Input) error {
	info, _ := m.catalog.Lookup(s.Tariff)
	msg := fmt.Sprintf("Введите количество участников числом от %d до %d.", info.MinParticipants, info.MaxParticipants)
	if in.Kind != InputText {
		return reject(s.Step, msg)
	}
	n, err := strconv.Atoi(strings.TrimSpace(in.Value))
	if err != nil || n < info.MinParticipants || n > info.MaxParticipants {
		return reject(s.Step, msg)
	}
	startParticipants(s, n)
	return nil
}

func startParticipants(s *models.Session, count int) {
	s.ParticipantCount = count
	s.Participants = make([]models.ParticipantDraft, count)
	s.Cursor = 0
	s.Step = models.StepFullName
}

func applyStyle(s *models.Session, in Input) error {
	if in.Kind != InputStyle || !models.Style(in.Value).Valid() {
		return reject(s.Step, "Выберите стиль отчёта с помощью кнопок ниже.")
	}
	s.Style = models.Style(in.Value)
	s.Step = models.StepAwaitingPayment
	return nil
}

func reject(step models.SessionStep, msg string) error {
	return &ValidationError{Step: step, Message: msg}
}

// RequiredParticipants returns the accepted participant range for a tariff.
func (m *Machine) RequiredParticipants(t models.Tariff) (minCount, maxCount int, ok bool) {
	info, ok := m.catalog.Lookup(t)
	if !ok {
		return 0, 0, false
	}
	return info.MinParticipants, info.MaxParticipants, true
}

// Finalize turns a session at awaiting_payment into an order draft.
func (m *Machine) Finalize(s models.Session) (models.OrderDraft, error) {
	if s.Step != models.StepAwaitingPayment {
		return models.OrderDraft{}, fmt.Errorf("%w: step %s", ErrIncomplete, s.Step)
	}
	info, ok := m.catalog.Lookup(s.Tariff)
	if !ok {
		return models.OrderDraft{}, fmt.Errorf("%w: unknown tariff %q", ErrIncomplete, s.Tariff)
	}
	count := len(s.Participants)
	if count != s.ParticipantCount || count < info.MinParticipants || count > info.MaxParticipants {
		return models.OrderDraft{}, fmt.Errorf("%w: %d participants for %s", ErrIncomplete, count, s.Tariff)
	}
	if !s.Style.Valid() {
		return models.OrderDraft{}, fmt.Errorf("%w: style not chosen", ErrIncomplete)
	}

	participants := make([]models.Participant, 0, count)
	for i, p := range s.Participants {
		if p.FullName == "" || p.BirthDate == nil || !p.BirthTime.Entered || !p.BirthPlace.Entered {
			return models.OrderDraft{}, fmt.Errorf("%w: participant %d incomplete", ErrIncomplete, i)
		}
		participants = append(participants, models.Participant{
			Position:   i,
			Role:       models.RoleFor(s.Tariff, i),
			FullName:   p.FullName,
			BirthDate:  *p.BirthDate,
			BirthTime:  p.BirthTime.Value,
			BirthPlace: p.BirthPlace.Value,
		})
	}

	return models.OrderDraft{
		TelegramID:   s.UserID,
		Tariff:       s.Tariff,
		Style:        s.Style,
		Amount:       info.Price,
		Currency:     models.CurrencyRUB,
		Participants: participants,
	}, nil
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
