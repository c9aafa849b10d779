package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

var minBirthDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrBirthDateFormat = errors.New("birth date must be DD.MM.YYYY")
	ErrBirthDateFuture = errors.New("birth date is in the future")
	ErrBirthDateTooOld = errors.New("birth date is before 1900")
	ErrBirthTimeFormat = errors.New("birth time must be HH:MM")
)

var parseMessages = map[error]string{
	ErrBirthDateFormat: "Неверный формат даты. Используйте ДД.ММ.ГГГГ, например 15.05.1990.",
	ErrBirthDateFuture: "Дата рождения не может быть в будущем.",
	ErrBirthDateTooOld: "Проверьте год рождения.",
	ErrBirthTimeFormat: "Неверный формат времени. Используйте ЧЧ:ММ, например 14:30.",
}

// applyParticipant runs the per-person sub-flow for the participant under
// the cursor: full name, birth date, birth time, birth place.
func (m *Machine) applyParticipant(s *models.Session, in Input) error {
	p := s.Current()
	if p == nil {
		return fmt.Errorf("%w: cursor %d out of range", ErrIncomplete, s.Cursor)
	}

	switch s.Step {
	case models.StepFullName:
		name, err := textField(s.Step, in, "Введите полное имя (ФИО).")
		if err != nil {
			return err
		}
		p.FullName = name
		s.Step = models.StepBirthDate

	case models.StepBirthDate:
		if in.Kind != InputText {
			return reject(s.Step, "Введите дату рождения в формате ДД.ММ.ГГГГ.")
		}
		d, err := ParseBirthDate(in.Value, m.now())
		if err != nil {
			return reject(s.Step, parseMessages[err])
		}
		p.BirthDate = &d
		s.Step = models.StepBirthTime

	case models.StepBirthTime:
		switch in.Kind {
		case InputSkip:
			p.BirthTime = models.Skipped()
		case InputText:
			t, err := ParseBirthTime(in.Value)
			if err != nil {
				return reject(s.Step, parseMessages[err])
			}
			p.BirthTime = models.Entered(t)
		default:
			return reject(s.Step, "Введите время рождения в формате ЧЧ:ММ или нажмите «Пропустить».")
		}
		s.Step = models.StepBirthPlace

	case models.StepBirthPlace:
		switch in.Kind {
		case InputSkip:
			p.BirthPlace = models.Skipped()
		case InputText:
			place, err := textField(s.Step, in, "Введите место рождения или нажмите «Пропустить».")
			if err != nil {
				return err
			}
			p.BirthPlace = models.Entered(place)
		default:
			return reject(s.Step, "Введите место рождения или нажмите «Пропустить».")
		}
		advance(s)
	}
	return nil
}

// advance moves the cursor; past the last participant the flow goes to style.
func advance(s *models.Session) {
	s.Cursor++
	if s.Cursor >= s.ParticipantCount {
		s.Step = models.StepCollectingStyle
		return
	}
	s.Step = models.StepFullName
}

func textField(step models.SessionStep, in Input, prompt string) (string, error) {
	if in.Kind != InputText {
		return "", reject(step, prompt)
	}
	v := strings.Join(strings.Fields(in.Value), " ")
	if v == "" {
		return "", reject(step, prompt)
	}
	if runeLen(v) > models.MaxTextFieldLength {
		return "", reject(step, fmt.Sprintf("Слишком длинное значение, максимум %d символов.", models.MaxTextFieldLength))
	}
	return v, nil
}

// ParseBirthDate accepts DD.MM.YYYY, not in the future and not before 1900.
func ParseBirthDate(raw string, now time.Time) (time.Time, error) {
	d, err := time.Parse(models.BirthDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ErrBirthDateFormat
	}
	if d.After(now) {
		return time.Time{}, ErrBirthDateFuture
	}
	if d.Before(minBirthDate) {
		return time.Time{}, ErrBirthDateTooOld
	}
	return d, nil
}

// ParseBirthTime accepts HH:MM and returns it normalised.
func ParseBirthTime(raw string) (string, error) {
	t, err := time.Parse(models.BirthTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", ErrBirthTimeFormat
	}
	return t.Format(models.BirthTimeLayout), nil
}

// Prompt is the question shown for the session's current step.
func (m *Machine) Prompt(s models.Session) string {
	who := ""
	if s.ParticipantCount > 1 {
		who = fmt.Sprintf(" (участник %d из %d)", s.Cursor+1, s.ParticipantCount)
	}
	switch s.Step {
	case models.StepCollectingTariff:
		return "Выберите тариф:"
	case models.StepCollectingCount:
		minCount, maxCount, _ := m.RequiredParticipants(s.Tariff)
		return fmt.Sprintf("Сколько человек участвует? Введите число от %d до %d.", minCount, maxCount)
	case models.StepFullName:
		return "Введите полное имя (ФИО)" + who + ":"
	case models.StepBirthDate:
		return "Введите дату рождения в формате ДД.ММ.ГГГГ" + who + ":"
	case models.StepBirthTime:
		return "Введите время рождения в формате ЧЧ:ММ" + who + " или нажмите «Пропустить»:"
	case models.StepBirthPlace:
		return "Введите место рождения" + who + " или нажмите «Пропустить»:"
	case models.StepCollectingStyle:
		return "Выберите стиль отчёта:"
	default:
		return ""
	}
}
