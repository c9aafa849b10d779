// Package provider submits report generation jobs to external text
// generators. Sync providers return the text right away; async providers
// return a task reference and deliver the text later as a Result.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

// ErrEmptyText is returned when a provider reports success without text.
var ErrEmptyText = errors.New("provider returned empty text")

type ReportProvider interface {
	Name() string
	Submit(ctx context.Context, req Request) (Submission, error)
}

// Request is everything a provider needs to write one report.
type Request struct {
	OrderID      int64             `json:"order_id"`
	ExternalID   string            `json:"external_id"`
	Tariff       models.Tariff     `json:"tariff"`
	Style        models.Style      `json:"style"`
	Participants []ParticipantData `json:"participants"`
	Prompt       string            `json:"prompt"`
	CallbackURL  string            `json:"callback_url,omitempty"`
}

type ParticipantData struct {
	Role       models.ParticipantRole `json:"role"`
	FullName   string                 `json:"full_name"`
	BirthDate  string                 `json:"birth_date"`
	BirthTime  *string                `json:"birth_time"`
	BirthPlace *string                `json:"birth_place"`
}

// Submission is the provider's answer. Async submissions carry only TaskRef.
// Failed lists providers tried before the one that answered.
type Submission struct {
	Provider string
	TaskRef  string
	Text     string
	Async    bool
	Failed   []Failure
}

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Result is an asynchronous generation outcome.
type Result struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewRequest builds a request from a stored order and its participants.
func NewRequest(order *models.Order, participants []*models.Participant, callbackURL string) Request {
	req := Request{
		OrderID:      order.ID,
		ExternalID:   order.ExternalID,
		Tariff:       order.Tariff,
		Style:        order.Style,
		CallbackURL:  callbackURL,
		Participants: make([]ParticipantData, 0, len(participants)),
	}
	for _, p := range participants {
		req.Participants = append(req.Participants, ParticipantData{
			Role:       p.Role,
			FullName:   p.FullName,
			BirthDate:  p.BirthDate.Format(models.BirthDateLayout),
			BirthTime:  p.BirthTime,
			BirthPlace: p.BirthPlace,
		})
	}
	req.Prompt = BuildPrompt(req)
	return req
}

func elapsed(start time.Time) float64 {
	return time.Since(start).Seconds()
}
