package model

import (
	"context"
	"time"
)

// Difficulty represents a question or assessment difficulty level.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Status represents the lifecycle state of an assessment.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// Performance levels derived from a score.
const (
	LevelExpert       = "Expert"
	LevelAdvanced     = "Advanced"
	LevelIntermediate = "Intermediate"
	LevelBeginner     = "Beginner"
	LevelNovice       = "Novice"
)

// Badge identifiers awarded by the statistics aggregator.
const (
	BadgeExpert          = "expert"
	BadgeFirstAssessment = "first_assessment"
)

// Assessment is one quiz run for a user in a given domain and difficulty.
// Questions and answers are append-only; answer i corresponds to question i
// except that answers are keyed by question ID for all lookups.
type Assessment struct {
	ID              string     `json:"id"`
	Domain          string     `json:"domain"`
	Difficulty      string     `json:"difficulty"`
	UserID          string     `json:"user_id,omitempty"`
	Questions       []Question `json:"questions"`
	Answers         []Answer   `json:"answers"`
	CurrentQuestion int        `json:"current_question"`
	Status          Status     `json:"status"`
	StartedAt       time.Time  `json:"start_time"`
	EndedAt         *time.Time `json:"end_time,omitempty"`
}

// Question is one generated assessment item. The ID is assigned on insertion
// into an assessment, not by the generator.
type Question struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Context        string     `json:"context"`
	Text           string     `json:"question"`
	Options        []string   `json:"options"`
	Correct        int        `json:"correct"`
	Difficulty     Difficulty `json:"difficulty"`
	Domain         string     `json:"domain,omitempty"`
	Explanation    string     `json:"explanation"`
	LearningPoints []string   `json:"learningPoints"`
	Sources        []string   `json:"sources"`
	CreatedAt      time.Time  `json:"timestamp"`
}

// Answer is one response to a question. IsCorrect is computed once at
// submission time and never recomputed.
type Answer struct {
	QuestionID  string    `json:"question_id"`
	AnswerIndex int       `json:"answer_index"`
	IsCorrect   bool      `json:"is_correct"`
	TimeTaken   float64   `json:"time_taken"`
	CreatedAt   time.Time `json:"timestamp"`
}

// AnswerResult is returned to the caller after an answer is accepted.
// The correct index is always revealed.
type AnswerResult struct {
	IsCorrect      bool     `json:"is_correct"`
	CorrectAnswer  int      `json:"correct_answer"`
	Explanation    string   `json:"explanation"`
	LearningPoints []string `json:"learning_points"`
	Sources        []string `json:"sources"`
}

// DifficultyStats holds per-difficulty answer counts for the results breakdown.
type DifficultyStats struct {
	Total      int     `json:"total"`
	Correct    int     `json:"correct"`
	Percentage float64 `json:"percentage"`
}

// Results is derived from an assessment on demand; the assessment itself
// remains the source of truth.
type Results struct {
	AssessmentID          string                         `json:"assessment_id"`
	Domain                string                         `json:"domain"`
	Difficulty            string                         `json:"difficulty"`
	TotalQuestions        int                            `json:"total_questions"`
	Answered              int                            `json:"answered"`
	Correct               int                            `json:"correct"`
	Incorrect             int                            `json:"incorrect"`
	Score                 float64                        `json:"score"`
	TotalTime             float64                        `json:"total_time"`
	AvgTime               float64                        `json:"avg_time"`
	FastestTime           float64                        `json:"fastest_time"`
	SlowestTime           float64                        `json:"slowest_time"`
	DifficultyPerformance map[Difficulty]DifficultyStats `json:"difficulty_performance"`
	CompletionDate        time.Time                      `json:"completion_date"`
}

// LearningResource is one recommended study resource in a learning path.
type LearningResource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// LearningTopic groups resources under a topic in a learning path.
type LearningTopic struct {
	Topic     string             `json:"topic"`
	Resources []LearningResource `json:"resources"`
}

// Feedback is the AI-generated feedback for a completed assessment.
type Feedback struct {
	FeedbackSummary string          `json:"feedbackSummary"`
	Strengths       []string        `json:"strengths"`
	Improvements    []string        `json:"improvements"`
	LearningPath    []LearningTopic `json:"learningPath"`
	NextSteps       []string        `json:"nextSteps"`
}

// HistoryEntry is one completed assessment in a user's history.
type HistoryEntry struct {
	Date             time.Time `json:"date"`
	Domain           string    `json:"domain"`
	Score            float64   `json:"score"`
	PerformanceLevel string    `json:"performance_level"`
}

// UserStats is the rolling per-session statistics record.
type UserStats struct {
	TotalAssessments int            `json:"total_assessments"`
	TotalScore       float64        `json:"total_score"`
	AvgScore         float64        `json:"avg_score"`
	Badges           []string       `json:"badges"`
	History          []HistoryEntry `json:"history"`
}

// HasBadge reports whether the badge is already in the set.
func (s *UserStats) HasBadge(badge string) bool {
	for _, b := range s.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// Session is the transport-layer record binding a browser session to its
// current assessment and question timer.
type Session struct {
	Token             string
	AssessmentID      string
	QuestionStartedAt *time.Time
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	Addr          string
	DBPath        string
	MaxQuestions  int
	Lang          string
	SecureCookies bool
}

type sessionCtxKey struct{}

// ContextWithSession stores a session in the request context.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext retrieves the session from context, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return s
}
