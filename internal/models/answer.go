package models

import "github.com/google/uuid"

// Answer is a single player's submission within a round. Time is the
// milliseconds elapsed from round start to submission, assigned by the
// server; it breaks score ties (the faster answer wins).
type Answer struct {
	UserID uuid.UUID `json:"userId"`
	Text   string    `json:"answer"`
	Time   int64     `json:"time"`
}

// ScoredAnswer is an Answer after the similarity oracle has run, with the
// score normalized to [0,100].
type ScoredAnswer struct {
	UserID uuid.UUID `json:"userId"`
	Text   string    `json:"answer"`
	Score  float64   `json:"score"`
	Time   int64     `json:"time"`
}
