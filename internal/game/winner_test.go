package game

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptduel/promptduel/internal/models"
)

func TestScoreAnswersSkipsEmpty(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	scorer := &stubScorer{scores: map[string]float64{"lighthouse": 88}}

	scored, err := ScoreAnswers(context.Background(), scorer, "a lighthouse at dawn", []models.Answer{
		{UserID: u1, Text: "   ", Time: 100},
		{UserID: u2, Text: "lighthouse", Time: 200},
	})
	require.NoError(t, err)
	require.Len(t, scored, 2)

	byUser := map[uuid.UUID]float64{}
	for _, s := range scored {
		byUser[s.UserID] = s.Score
	}
	assert.Zero(t, byUser[u1])
	assert.Equal(t, 88.0, byUser[u2])
}

func TestScoreAnswersAllEmptyNeverCallsScorer(t *testing.T) {
	scorer := &stubScorer{err: assert.AnError}

	scored, err := ScoreAnswers(context.Background(), scorer, "prompt", []models.Answer{
		{UserID: uuid.New(), Text: "", Time: 100},
		{UserID: uuid.New(), Text: "  ", Time: 200},
	})
	require.NoError(t, err)
	for _, s := range scored {
		assert.Zero(t, s.Score)
	}
}

func TestScoreAnswersEmptyInput(t *testing.T) {
	_, err := ScoreAnswers(context.Background(), &stubScorer{}, "prompt", nil)
	assert.Error(t, err)
}

func TestWinnerByScoresHighestWins(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	winner, err := WinnerByScores([]models.ScoredAnswer{
		{UserID: u1, Score: 41.2, Time: 50},
		{UserID: u2, Score: 87.9, Time: 500},
	})
	require.NoError(t, err)
	assert.Equal(t, u2, winner)
}

func TestWinnerByScoresTieGoesToFaster(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	winner, err := WinnerByScores([]models.ScoredAnswer{
		{UserID: u1, Score: 75, Time: 300},
		{UserID: u2, Score: 75, Time: 90},
	})
	require.NoError(t, err)
	assert.Equal(t, u2, winner)
}

func TestWinnerByScoresSingleAnswer(t *testing.T) {
	u1 := uuid.New()
	winner, err := WinnerByScores([]models.ScoredAnswer{
		{UserID: u1, Score: 0, Time: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, u1, winner)
}

func TestWinnerByScoresNoAnswers(t *testing.T) {
	_, err := WinnerByScores(nil)
	assert.Error(t, err)
}
