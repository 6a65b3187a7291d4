package game

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/promptduel/promptduel/internal/ai"
	"github.com/promptduel/promptduel/internal/models"
)

// ScoreAnswers rates each submitted answer against the secret prompt in a
// single batched scorer call. Empty answers never reach the scorer and
// score 0. The result keeps a stable order (ascending user id) so the
// mapping back from the scorer response is deterministic.
func ScoreAnswers(ctx context.Context, scorer ai.SimilarityScorer, prompt string, answers []models.Answer) ([]models.ScoredAnswer, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("no answers to score")
	}

	sorted := make([]models.Answer, len(answers))
	copy(sorted, answers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UserID.String() < sorted[j].UserID.String()
	})

	var candidates []string
	var candidateIdx []int
	for i, a := range sorted {
		if text := strings.TrimSpace(a.Text); text != "" {
			candidates = append(candidates, text)
			candidateIdx = append(candidateIdx, i)
		}
	}

	scores := make([]float64, len(sorted))
	if len(candidates) > 0 {
		res, err := scorer.Score(ctx, prompt, candidates)
		if err != nil {
			return nil, fmt.Errorf("similarity scoring failed: %w", err)
		}
		if len(res) != len(candidates) {
			return nil, fmt.Errorf("scorer returned %d scores for %d candidates", len(res), len(candidates))
		}
		for i, idx := range candidateIdx {
			scores[idx] = res[i]
		}
	}

	out := make([]models.ScoredAnswer, len(sorted))
	for i, a := range sorted {
		out[i] = models.ScoredAnswer{
			UserID: a.UserID,
			Text:   a.Text,
			Score:  scores[i],
			Time:   a.Time,
		}
	}
	return out, nil
}

// WinnerByScores picks the winner: highest score first, ties broken by the
// earlier submission timestamp. A single answer wins by default.
func WinnerByScores(scores []models.ScoredAnswer) (uuid.UUID, error) {
	if len(scores) == 0 {
		return uuid.Nil, fmt.Errorf("cannot resolve a winner without answers")
	}

	ranked := make([]models.ScoredAnswer, len(scores))
	copy(ranked, scores)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Time < ranked[j].Time
	})
	return ranked[0].UserID, nil
}
