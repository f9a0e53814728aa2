// Package fortune implements a pay-per-request fortune cookie: a teller that
// draws a random fortune and a controller that fetches one through an x402
// payment-aware transport.
package fortune

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the ISO-8601 layout of Fortune.IssuedAt on the wire.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultFortunes is the candidate list served when none is configured.
var DefaultFortunes = []string{
	"A fresh start will put you on your way.",
	"A friend is a present you give yourself.",
	"A gamer's diet is the best diet.",
	"A golden egg of opportunity falls into your lap this month.",
	"A good time to finish up old tasks.",
	"A hunch is creativity trying to tell you something.",
	"A lifetime of happiness lies ahead of you.",
	"A light heart carries you through all the hard times.",
}

// Fortune is a single drawn fortune. It is immutable once created.
type Fortune struct {
	Text     string
	IssuedAt time.Time
}

// FortuneResponse is the JSON body of a successful fortune request
type FortuneResponse struct {
	Fortune   string `json:"fortune"`
	Timestamp string `json:"timestamp"`
}

// Response converts f to its wire form.
func (f Fortune) Response() FortuneResponse {
	return FortuneResponse{
		Fortune:   f.Text,
		Timestamp: f.IssuedAt.UTC().Format(TimestampLayout),
	}
}

// MarshalJSON encodes f in its wire form.
func (f Fortune) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Response())
}

// Settlement is the part of a payment receipt the controller surfaces. Its
// contents come from the payment collaborator and are never validated here.
type Settlement struct {
	Transaction string
	Network     string
	Payer       string
}
