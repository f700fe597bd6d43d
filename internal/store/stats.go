package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/cybered/assessor/internal/model"
)

// GetUserStats loads the rolling statistics record for a session, including
// badges and history. A session with no record yet gets a zero-value record.
func (s *Store) GetUserStats(token string) (*model.UserStats, error) {
	var stats model.UserStats
	err := s.db.QueryRow(
		`SELECT total_assessments, total_score, avg_score FROM user_stats WHERE session_token = ?`, token,
	).Scan(&stats.TotalAssessments, &stats.TotalScore, &stats.AvgScore)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT badge FROM badges WHERE session_token = ? ORDER BY awarded_at`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var badge string
		if err := rows.Scan(&badge); err != nil {
			return nil, err
		}
		stats.Badges = append(stats.Badges, badge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := s.db.Query(
		`SELECT completed_at, domain, score, performance_level
		 FROM history WHERE session_token = ? ORDER BY id`, token,
	)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var e model.HistoryEntry
		if err := hrows.Scan(&e.Date, &e.Domain, &e.Score, &e.PerformanceLevel); err != nil {
			return nil, err
		}
		stats.History = append(stats.History, e)
	}
	return &stats, hrows.Err()
}

// StatsRecorded reports whether the assessment's result has already been
// folded into the session statistics.
func (s *Store) StatsRecorded(assessmentID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM recorded_results WHERE assessment_id = ?`, assessmentID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkStatsRecorded marks the assessment as recorded so repeated results
// requests do not inflate the statistics.
func (s *Store) MarkStatsRecorded(assessmentID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO recorded_results (assessment_id, recorded_at) VALUES (?, ?)`,
		assessmentID, time.Now(),
	)
	return err
}

// SaveUserStats writes the statistics record back. Totals are upserted;
// badges and history are append-only, so only new entries are inserted.
func (s *Store) SaveUserStats(token string, stats *model.UserStats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO user_stats (session_token, total_assessments, total_score, avg_score)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_token) DO UPDATE SET total_assessments = ?, total_score = ?, avg_score = ?`,
		token, stats.TotalAssessments, stats.TotalScore, stats.AvgScore,
		stats.TotalAssessments, stats.TotalScore, stats.AvgScore,
	)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, badge := range stats.Badges {
		_, err = tx.Exec(
			`INSERT OR IGNORE INTO badges (session_token, badge, awarded_at) VALUES (?, ?, ?)`,
			token, badge, now,
		)
		if err != nil {
			return err
		}
	}

	var have int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM history WHERE session_token = ?`, token).Scan(&have); err != nil {
		return err
	}
	if have > len(stats.History) {
		slog.Warn("stored history longer than record, skipping append", "token", token, "stored", have, "record", len(stats.History))
	}
	for i := have; i < len(stats.History); i++ {
		e := stats.History[i]
		_, err = tx.Exec(
			`INSERT INTO history (session_token, completed_at, domain, score, performance_level)
			 VALUES (?, ?, ?, ?, ?)`,
			token, e.Date, e.Domain, e.Score, e.PerformanceLevel,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
