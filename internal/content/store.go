package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/practiceprep/backend/internal/models"
)

// Store reads answer keys and exam definitions owned by the content system.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Questions ───────────────────────────────────────────

func (s *Store) AnswerKey(ctx context.Context, questionID int64) (*models.AnswerKey, error) {
	key := models.AnswerKey{QuestionID: questionID}
	err := s.db.QueryRowContext(ctx,
		`SELECT correct_answer_id FROM questions WHERE id = $1`,
		questionID,
	).Scan(&key.CorrectAnswerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %d: %w", questionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	return &key, nil
}

// AnswerKeys returns the keys that exist among questionIDs.
func (s *Store) AnswerKeys(ctx context.Context, questionIDs []int64) (map[int64]models.AnswerKey, error) {
	keys := make(map[int64]models.AnswerKey, len(questionIDs))
	if len(questionIDs) == 0 {
		return keys, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, correct_answer_id FROM questions WHERE id = ANY($1)`,
		pq.Array(questionIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("get answer keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k models.AnswerKey
		if err := rows.Scan(&k.QuestionID, &k.CorrectAnswerID); err != nil {
			return nil, fmt.Errorf("scan answer key: %w", err)
		}
		keys[k.QuestionID] = k
	}
	return keys, rows.Err()
}

// ── Exams ───────────────────────────────────────────────

func (s *Store) Exam(ctx context.Context, examID int64) (*models.ExamDefinition, error) {
	exam := models.ExamDefinition{ID: examID}
	var questionIDs pq.Int64Array
	err := s.db.QueryRowContext(ctx,
		`SELECT e.title, e.official, e.difficulty,
		        COALESCE(array_agg(eq.question_id ORDER BY eq.position, eq.question_id)
		                 FILTER (WHERE eq.question_id IS NOT NULL), '{}')
		 FROM exams e
		 LEFT JOIN exam_questions eq ON eq.exam_id = e.id
		 WHERE e.id = $1
		 GROUP BY e.id`,
		examID,
	).Scan(&exam.Title, &exam.Official, &exam.Difficulty, &questionIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exam %d: %w", examID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	exam.QuestionIDs = []int64(questionIDs)
	return &exam, nil
}
