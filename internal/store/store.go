package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cybered/assessor/internal/model"

	_ "modernc.org/sqlite"
)

// Store persists sessions, assessments, and user statistics between requests.
// The engine never touches it: handlers read an assessment aggregate, run an
// engine operation, and write the delta back.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'in_progress',
		current_question INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct INTEGER NOT NULL,
		difficulty TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		learning_points TEXT NOT NULL DEFAULT '[]',
		sources TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (assessment_id) REFERENCES assessments(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		answer_index INTEGER NOT NULL,
		is_correct INTEGER NOT NULL,
		time_taken REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (assessment_id) REFERENCES assessments(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL DEFAULT '',
		question_started_at DATETIME,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_stats (
		session_token TEXT PRIMARY KEY,
		total_assessments INTEGER NOT NULL DEFAULT 0,
		total_score REAL NOT NULL DEFAULT 0,
		avg_score REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS badges (
		session_token TEXT NOT NULL,
		badge TEXT NOT NULL,
		awarded_at DATETIME NOT NULL,
		UNIQUE (session_token, badge)
	);

	CREATE TABLE IF NOT EXISTS recorded_results (
		assessment_id TEXT PRIMARY KEY,
		recorded_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_token TEXT NOT NULL,
		completed_at DATETIME NOT NULL,
		domain TEXT NOT NULL,
		score REAL NOT NULL,
		performance_level TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateAssessment stores a freshly created assessment. Questions and answers
// present on the aggregate are not written here; they arrive append-only via
// AppendQuestion and AppendAnswer.
func (s *Store) CreateAssessment(a *model.Assessment) error {
	_, err := s.db.Exec(
		`INSERT INTO assessments (id, domain, difficulty, user_id, status, current_question, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Domain, a.Difficulty, a.UserID, a.Status, a.CurrentQuestion, a.StartedAt, a.EndedAt,
	)
	return err
}

// GetAssessment loads the full assessment aggregate with questions and
// answers in insertion order. Returns nil when the ID is unknown.
func (s *Store) GetAssessment(id string) (*model.Assessment, error) {
	var a model.Assessment
	err := s.db.QueryRow(
		`SELECT id, domain, difficulty, user_id, status, current_question, started_at, ended_at
		 FROM assessments WHERE id = ?`, id,
	).Scan(&a.ID, &a.Domain, &a.Difficulty, &a.UserID, &a.Status, &a.CurrentQuestion, &a.StartedAt, &a.EndedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if a.Questions, err = s.questionsFor(id); err != nil {
		return nil, err
	}
	if a.Answers, err = s.answersFor(id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) questionsFor(assessmentID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, title, context, text, options, correct, difficulty, domain, explanation, learning_points, sources, created_at
		 FROM questions WHERE assessment_id = ? ORDER BY position`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options, points, sources string
		if err := rows.Scan(&q.ID, &q.Title, &q.Context, &q.Text, &options, &q.Correct,
			&q.Difficulty, &q.Domain, &q.Explanation, &points, &sources, &q.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalStrings(options, &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		if err := unmarshalStrings(points, &q.LearningPoints); err != nil {
			return nil, fmt.Errorf("question %s learning points: %w", q.ID, err)
		}
		if err := unmarshalStrings(sources, &q.Sources); err != nil {
			return nil, fmt.Errorf("question %s sources: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) answersFor(assessmentID string) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT question_id, answer_index, is_correct, time_taken, created_at
		 FROM answers WHERE assessment_id = ? ORDER BY id`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var ans model.Answer
		if err := rows.Scan(&ans.QuestionID, &ans.AnswerIndex, &ans.IsCorrect, &ans.TimeTaken, &ans.CreatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}

// AppendQuestion inserts a question at the given position in the assessment.
func (s *Store) AppendQuestion(assessmentID string, q model.Question, position int) error {
	options, err := marshalStrings(q.Options)
	if err != nil {
		return err
	}
	points, err := marshalStrings(q.LearningPoints)
	if err != nil {
		return err
	}
	sources, err := marshalStrings(q.Sources)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, assessment_id, position, title, context, text, options, correct,
		                        difficulty, domain, explanation, learning_points, sources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, assessmentID, position, q.Title, q.Context, q.Text, options, q.Correct,
		q.Difficulty, q.Domain, q.Explanation, points, sources, q.CreatedAt,
	)
	return err
}

// AppendAnswer inserts the answer and syncs the assessment's cursor, status,
// and end timestamp in one transaction.
func (s *Store) AppendAnswer(a *model.Assessment, ans model.Answer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO answers (assessment_id, question_id, answer_index, is_correct, time_taken, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, ans.QuestionID, ans.AnswerIndex, ans.IsCorrect, ans.TimeTaken, ans.CreatedAt,
	)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE assessments SET current_question = ?, status = ?, ended_at = ? WHERE id = ?`,
		a.CurrentQuestion, a.Status, a.EndedAt, a.ID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteAssessment marks the assessment complete with the given end time.
func (s *Store) CompleteAssessment(id string, endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE assessments SET status = ?, ended_at = ? WHERE id = ?`,
		model.StatusComplete, endedAt, id,
	)
	return err
}

// ListCompletedAssessments loads the full aggregates of all completed
// assessments, oldest first.
func (s *Store) ListCompletedAssessments() ([]model.Assessment, error) {
	rows, err := s.db.Query(`SELECT id FROM assessments WHERE status = ? ORDER BY started_at`, model.StatusComplete)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var assessments []model.Assessment
	for _, id := range ids {
		a, err := s.GetAssessment(id)
		if err != nil {
			return nil, fmt.Errorf("load assessment %s: %w", id, err)
		}
		if a != nil {
			assessments = append(assessments, *a)
		}
	}
	return assessments, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(src string, dst *[]string) error {
	if src == "" {
		return nil
	}
	return json.Unmarshal([]byte(src), dst)
}
