package engine

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cybered/assessor/internal/model"
)

var (
	// ErrQuestionNotFound is returned when a submitted answer references an
	// unknown question ID. The assessment is not mutated.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoQuestions is returned when results are requested for an
	// assessment with zero questions.
	ErrNoQuestions = errors.New("no questions in assessment")
	// ErrAlreadyAnswered is returned on a duplicate submission for a
	// question that already has an answer. The assessment is not mutated.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrAssessmentComplete is returned when adding a question to a
	// completed assessment.
	ErrAssessmentComplete = errors.New("assessment is complete")
	// ErrNilAssessment is returned when an operation receives no assessment.
	ErrNilAssessment = errors.New("nil assessment")
)

// DefaultMaxQuestions is the number of questions per assessment unless
// configured otherwise.
const DefaultMaxQuestions = 10

// Engine implements the assessment lifecycle and scoring rules. It holds no
// per-assessment state: every operation takes the caller-held assessment and
// mutates it in place, so the caller owns reading and rewriting the record
// around each call.
type Engine struct {
	maxQuestions int
}

// New creates an engine. maxQuestions <= 0 selects the default.
func New(maxQuestions int) *Engine {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	return &Engine{maxQuestions: maxQuestions}
}

// MaxQuestions returns the configured questions-per-assessment limit.
func (e *Engine) MaxQuestions() int {
	return e.maxQuestions
}

// Create starts a new assessment. Domain and difficulty are accepted verbatim;
// constraining them to known values is the caller's job.
func (e *Engine) Create(domain, difficulty, userID string) *model.Assessment {
	a := &model.Assessment{
		ID:         uuid.NewString(),
		Domain:     domain,
		Difficulty: difficulty,
		UserID:     userID,
		Status:     model.StatusInProgress,
		StartedAt:  time.Now(),
	}
	slog.Info("created assessment", "id", a.ID, "domain", domain, "difficulty", difficulty)
	return a
}

// AddQuestion assigns the question a fresh ID and creation timestamp, then
// appends it. Question content is not validated here; that is the generator
// adapter's job.
func (e *Engine) AddQuestion(a *model.Assessment, q model.Question) (string, error) {
	if a == nil {
		return "", ErrNilAssessment
	}
	if a.Status == model.StatusComplete {
		return "", ErrAssessmentComplete
	}
	q.ID = uuid.NewString()
	q.CreatedAt = time.Now()
	a.Questions = append(a.Questions, q)
	slog.Debug("added question", "assessment_id", a.ID, "question_id", q.ID)
	return q.ID, nil
}

// SubmitAnswer scores an answer against the referenced question, appends it,
// and advances the cursor by exactly one. A second submission for the same
// question is rejected with ErrAlreadyAnswered so the answers/questions
// invariant cannot be corrupted. An out-of-range answer index is not an
// error; it is simply never equal to the correct index.
func (e *Engine) SubmitAnswer(a *model.Assessment, questionID string, answerIndex int, timeTaken float64) (*model.AnswerResult, error) {
	if a == nil {
		return nil, ErrNilAssessment
	}

	var q *model.Question
	for i := range a.Questions {
		if a.Questions[i].ID == questionID {
			q = &a.Questions[i]
			break
		}
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return nil, ErrAlreadyAnswered
		}
	}

	isCorrect := answerIndex == q.Correct
	a.Answers = append(a.Answers, model.Answer{
		QuestionID:  questionID,
		AnswerIndex: answerIndex,
		IsCorrect:   isCorrect,
		TimeTaken:   timeTaken,
		CreatedAt:   time.Now(),
	})
	a.CurrentQuestion++
	if a.CurrentQuestion >= e.maxQuestions {
		a.Status = model.StatusComplete
		now := time.Now()
		a.EndedAt = &now
	}

	slog.Info("answer submitted", "assessment_id", a.ID, "correct", isCorrect, "time_taken", timeTaken)

	return &model.AnswerResult{
		IsCorrect:      isCorrect,
		CorrectAnswer:  q.Correct,
		Explanation:    q.Explanation,
		LearningPoints: q.LearningPoints,
		Sources:        q.Sources,
	}, nil
}

// CalculateResults derives the results record from the assessment. The score
// denominator is questions asked, not answers given, so unanswered questions
// count against the score.
func (e *Engine) CalculateResults(a *model.Assessment) (*model.Results, error) {
	if a == nil {
		return nil, ErrNilAssessment
	}
	total := len(a.Questions)
	if total == 0 {
		return nil, ErrNoQuestions
	}

	var correct int
	var totalTime, fastest, slowest float64
	for i, ans := range a.Answers {
		if ans.IsCorrect {
			correct++
		}
		totalTime += ans.TimeTaken
		if i == 0 || ans.TimeTaken < fastest {
			fastest = ans.TimeTaken
		}
		if i == 0 || ans.TimeTaken > slowest {
			slowest = ans.TimeTaken
		}
	}

	answered := len(a.Answers)
	avgTime := 0.0
	if answered > 0 {
		avgTime = round2(totalTime / float64(answered))
	}
	score := round2(float64(correct) / float64(total) * 100)

	r := &model.Results{
		AssessmentID:          a.ID,
		Domain:                a.Domain,
		Difficulty:            a.Difficulty,
		TotalQuestions:        total,
		Answered:              answered,
		Correct:               correct,
		Incorrect:             answered - correct,
		Score:                 score,
		TotalTime:             round2(totalTime),
		AvgTime:               avgTime,
		FastestTime:           round2(fastest),
		SlowestTime:           round2(slowest),
		DifficultyPerformance: analyzeDifficulty(a),
		CompletionDate:        time.Now(),
	}
	slog.Info("results calculated", "assessment_id", a.ID, "score", score, "correct", correct, "total", total)
	return r, nil
}

// analyzeDifficulty buckets answered questions into the three difficulty
// levels. Answers are matched to questions by question ID, so the breakdown
// stays correct even if the answer sequence ever diverges from question
// order. An unknown or missing question difficulty buckets as intermediate.
func analyzeDifficulty(a *model.Assessment) map[model.Difficulty]model.DifficultyStats {
	byID := make(map[string]*model.Question, len(a.Questions))
	for i := range a.Questions {
		byID[a.Questions[i].ID] = &a.Questions[i]
	}

	counts := map[model.Difficulty]*model.DifficultyStats{
		model.DifficultyBeginner:     {},
		model.DifficultyIntermediate: {},
		model.DifficultyAdvanced:     {},
	}
	for _, ans := range a.Answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			continue
		}
		diff := q.Difficulty
		if _, known := counts[diff]; !known {
			diff = model.DifficultyIntermediate
		}
		counts[diff].Total++
		if ans.IsCorrect {
			counts[diff].Correct++
		}
	}

	stats := make(map[model.Difficulty]model.DifficultyStats, len(counts))
	for diff, c := range counts {
		if c.Total > 0 {
			c.Percentage = round1(float64(c.Correct) / float64(c.Total) * 100)
		}
		stats[diff] = *c
	}
	return stats
}

// PerformanceLevel maps a score to a label via fixed thresholds, evaluated
// high to low.
func PerformanceLevel(score float64) string {
	switch {
	case score >= 90:
		return model.LevelExpert
	case score >= 75:
		return model.LevelAdvanced
	case score >= 60:
		return model.LevelIntermediate
	case score >= 40:
		return model.LevelBeginner
	default:
		return model.LevelNovice
	}
}

// RecommendedDifficulty suggests the next difficulty for a given score.
// Advanced is never promoted, beginner is never demoted, and mid-band scores
// (50 to 85) leave the difficulty unchanged.
func RecommendedDifficulty(score float64, current string) string {
	switch {
	case score >= 85 && current == string(model.DifficultyBeginner):
		return string(model.DifficultyIntermediate)
	case score >= 85 && current == string(model.DifficultyIntermediate):
		return string(model.DifficultyAdvanced)
	case score < 50 && current == string(model.DifficultyAdvanced):
		return string(model.DifficultyIntermediate)
	case score < 50 && current == string(model.DifficultyIntermediate):
		return string(model.DifficultyBeginner)
	default:
		return current
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
