package models

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AnswerKey is the part of a question the engine needs to grade an answer.
type AnswerKey struct {
	QuestionID      int64  `json:"question_id"`
	CorrectAnswerID string `json:"correct_answer_id"`
}
