// Package ai defines the external challenge and scoring contracts the
// lobby engine consumes. The engine only sees these interfaces; the
// Gemini-backed implementation lives in client.go and test doubles live
// with the engine tests.
package ai

import (
	"context"

	"github.com/promptduel/promptduel/internal/models"
)

// ChallengeGenerator produces a new challenge: a secret prompt plus the
// public payload (question text and image) derived from it.
type ChallengeGenerator interface {
	Generate(ctx context.Context) (*models.Task, error)
}

// SimilarityScorer rates candidate texts against the secret prompt,
// returning one score in [0,100] per candidate in the same order. Callers
// pre-filter empty candidates; the scorer never sees them.
type SimilarityScorer interface {
	Score(ctx context.Context, prompt string, candidates []string) ([]float64, error)
}
