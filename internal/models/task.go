package models

// Task is a generated challenge. Prompt is the secret the players are
// guessing and must never be sent to a client before the reveal; Question
// and Image form the public payload.
type Task struct {
	Prompt   string `json:"prompt,omitempty"`
	Question string `json:"question"`
	Image    string `json:"image"`
}

// Public returns a copy safe to broadcast mid-round.
func (t Task) Public() Task {
	return Task{Question: t.Question, Image: t.Image}
}
