package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/cybered/assessor/internal/model"
)

const sessionTTL = 24 * time.Hour

// CreateSession creates a new anonymous session with a random token.
func (s *Store) CreateSession() (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &model.Session{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (token, assessment_id, question_started_at, created_at, expires_at)
		 VALUES (?, '', NULL, ?, ?)`,
		sess.Token, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession returns the session for the given token, or nil if not
// found or expired.
func (s *Store) GetSession(token string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT token, assessment_id, question_started_at, created_at, expires_at
		 FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.AssessmentID, &sess.QuestionStartedAt, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteSession(token)
		return nil, nil
	}
	return &sess, nil
}

// SetSessionAssessment binds the session to its current assessment and
// clears any running question timer.
func (s *Store) SetSessionAssessment(token, assessmentID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET assessment_id = ?, question_started_at = NULL WHERE token = ?`,
		assessmentID, token,
	)
	return err
}

// SetQuestionStartTime records when the current question was shown; a nil
// value clears the timer.
func (s *Store) SetQuestionStartTime(token string, at *time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET question_started_at = ? WHERE token = ?`, at, token)
	return err
}

// DeleteSession removes a session token.
func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired sessions.
func (s *Store) CleanupExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now())
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
