package engine

import (
	"errors"
	"testing"

	"github.com/cybered/assessor/internal/model"
)

func newTestAssessment(t *testing.T, e *Engine) *model.Assessment {
	t.Helper()
	a := e.Create("network-security", "beginner", "")
	if a.ID == "" {
		t.Fatal("expected non-empty assessment ID")
	}
	return a
}

func addTestQuestion(t *testing.T, e *Engine, a *model.Assessment, correct int, difficulty model.Difficulty) string {
	t.Helper()
	id, err := e.AddQuestion(a, model.Question{
		Title:       "Suspicious traffic",
		Context:     "A firewall log shows repeated connection attempts.",
		Text:        "What is the BEST course of action?",
		Options:     []string{"A", "B", "C", "D"},
		Correct:     correct,
		Difficulty:  difficulty,
		Explanation: "Option explanation",
	})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	return id
}

func TestCreate(t *testing.T) {
	e := New(10)

	a := e.Create("secure-coding", "intermediate", "user-1")
	if a.Domain != "secure-coding" {
		t.Errorf("expected domain secure-coding, got %q", a.Domain)
	}
	if a.Difficulty != "intermediate" {
		t.Errorf("expected difficulty intermediate, got %q", a.Difficulty)
	}
	if a.UserID != "user-1" {
		t.Errorf("expected user ID user-1, got %q", a.UserID)
	}
	if a.Status != model.StatusInProgress {
		t.Errorf("expected status in_progress, got %q", a.Status)
	}
	if a.CurrentQuestion != 0 {
		t.Errorf("expected cursor 0, got %d", a.CurrentQuestion)
	}
	if len(a.Questions) != 0 || len(a.Answers) != 0 {
		t.Error("expected empty question and answer sequences")
	}
	if a.StartedAt.IsZero() {
		t.Error("expected start timestamp")
	}

	// Unknown domain/difficulty values are accepted verbatim.
	b := e.Create("quantum-basket-weaving", "impossible", "")
	if b.Domain != "quantum-basket-weaving" || b.Difficulty != "impossible" {
		t.Error("expected unknown values accepted verbatim")
	}
}

func TestCreateUniqueIDs(t *testing.T) {
	e := New(10)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a := e.Create("network-security", "beginner", "")
		if seen[a.ID] {
			t.Fatalf("duplicate assessment ID: %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestAddQuestion(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id := addTestQuestion(t, e, a, 0, model.DifficultyBeginner)
		if id == "" {
			t.Fatal("expected non-empty question ID")
		}
		if ids[id] {
			t.Fatalf("duplicate question ID: %s", id)
		}
		ids[id] = true
		if len(a.Questions) != i+1 {
			t.Fatalf("expected %d questions, got %d", i+1, len(a.Questions))
		}
	}
	if a.Questions[0].CreatedAt.IsZero() {
		t.Error("expected question creation timestamp")
	}

	if _, err := e.AddQuestion(nil, model.Question{}); !errors.Is(err, ErrNilAssessment) {
		t.Errorf("expected ErrNilAssessment, got %v", err)
	}

	a.Status = model.StatusComplete
	if _, err := e.AddQuestion(a, model.Question{}); !errors.Is(err, ErrAssessmentComplete) {
		t.Errorf("expected ErrAssessmentComplete, got %v", err)
	}
}

func TestSubmitAnswer(t *testing.T) {
	tests := []struct {
		name        string
		correct     int
		answer      int
		wantCorrect bool
	}{
		{"correct answer", 2, 2, true},
		{"wrong answer", 2, 0, false},
		{"out of range high", 2, 7, false},
		{"out of range negative", 2, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(10)
			a := newTestAssessment(t, e)
			qID := addTestQuestion(t, e, a, tt.correct, model.DifficultyBeginner)

			res, err := e.SubmitAnswer(a, qID, tt.answer, 4.5)
			if err != nil {
				t.Fatalf("SubmitAnswer: %v", err)
			}
			if res.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", res.IsCorrect, tt.wantCorrect)
			}
			// The correct index is always revealed.
			if res.CorrectAnswer != tt.correct {
				t.Errorf("CorrectAnswer = %d, want %d", res.CorrectAnswer, tt.correct)
			}
			if len(a.Answers) != 1 {
				t.Fatalf("expected 1 answer, got %d", len(a.Answers))
			}
			if a.CurrentQuestion != 1 {
				t.Errorf("expected cursor 1, got %d", a.CurrentQuestion)
			}
			if a.Answers[0].TimeTaken != 4.5 {
				t.Errorf("expected time_taken 4.5, got %f", a.Answers[0].TimeTaken)
			}
		})
	}
}

func TestSubmitAnswerNotFound(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)
	addTestQuestion(t, e, a, 0, model.DifficultyBeginner)

	_, err := e.SubmitAnswer(a, "nonexistent", 0, 1)
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	// No mutation on failure.
	if len(a.Answers) != 0 {
		t.Errorf("expected 0 answers after failed submit, got %d", len(a.Answers))
	}
	if a.CurrentQuestion != 0 {
		t.Errorf("expected cursor 0 after failed submit, got %d", a.CurrentQuestion)
	}
}

func TestSubmitAnswerDuplicate(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)
	qID := addTestQuestion(t, e, a, 1, model.DifficultyBeginner)

	if _, err := e.SubmitAnswer(a, qID, 1, 3); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := e.SubmitAnswer(a, qID, 1, 3)
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
	// The duplicate must not advance the cursor or append a second answer.
	if len(a.Answers) != 1 {
		t.Errorf("expected 1 answer, got %d", len(a.Answers))
	}
	if a.CurrentQuestion != 1 {
		t.Errorf("expected cursor 1, got %d", a.CurrentQuestion)
	}
}

func TestSubmitAnswerCursorAdvances(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)

	const k = 5
	var ids []string
	for i := 0; i < k; i++ {
		ids = append(ids, addTestQuestion(t, e, a, 0, model.DifficultyBeginner))
	}
	for _, id := range ids {
		if _, err := e.SubmitAnswer(a, id, 0, 1); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}
	if a.CurrentQuestion != k {
		t.Errorf("expected cursor %d after %d answers, got %d", k, k, a.CurrentQuestion)
	}
}

func TestSubmitAnswerCompletesAtMax(t *testing.T) {
	e := New(2)
	a := newTestAssessment(t, e)

	q1 := addTestQuestion(t, e, a, 0, model.DifficultyBeginner)
	q2 := addTestQuestion(t, e, a, 0, model.DifficultyBeginner)

	if _, err := e.SubmitAnswer(a, q1, 0, 1); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if a.Status != model.StatusInProgress {
		t.Errorf("expected in_progress after 1 of 2, got %q", a.Status)
	}
	if _, err := e.SubmitAnswer(a, q2, 0, 1); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if a.Status != model.StatusComplete {
		t.Errorf("expected complete after 2 of 2, got %q", a.Status)
	}
	if a.EndedAt == nil {
		t.Error("expected end timestamp on completion")
	}
}

func TestCalculateResultsEmpty(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)
	if _, err := e.CalculateResults(a); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestCalculateResultsScore(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)

	// 3 correct of 4 questions asked.
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, addTestQuestion(t, e, a, 1, model.DifficultyBeginner))
	}
	answers := []int{1, 1, 0, 1}
	for i, id := range ids {
		if _, err := e.SubmitAnswer(a, id, answers[i], 2); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	r, err := e.CalculateResults(a)
	if err != nil {
		t.Fatalf("CalculateResults: %v", err)
	}
	if r.Score != 75.0 {
		t.Errorf("expected score 75.0, got %v", r.Score)
	}
	if r.Correct != 3 || r.Incorrect != 1 {
		t.Errorf("expected 3 correct / 1 incorrect, got %d/%d", r.Correct, r.Incorrect)
	}
}

func TestCalculateResultsUnansweredCountAgainst(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)

	q1 := addTestQuestion(t, e, a, 0, model.DifficultyBeginner)
	addTestQuestion(t, e, a, 0, model.DifficultyBeginner)

	if _, err := e.SubmitAnswer(a, q1, 0, 5); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	r, err := e.CalculateResults(a)
	if err != nil {
		t.Fatalf("CalculateResults: %v", err)
	}
	// Denominator is questions asked, not answers given: 1/2 correct.
	if r.Score != 50.0 {
		t.Errorf("expected score 50.0, got %v", r.Score)
	}
	if r.Answered != 1 || r.TotalQuestions != 2 {
		t.Errorf("expected 1 answered of 2, got %d of %d", r.Answered, r.TotalQuestions)
	}
}

func TestCalculateResultsNoAnswers(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)
	addTestQuestion(t, e, a, 0, model.DifficultyBeginner)

	r, err := e.CalculateResults(a)
	if err != nil {
		t.Fatalf("CalculateResults: %v", err)
	}
	if r.Score != 0 {
		t.Errorf("expected score 0, got %v", r.Score)
	}
	// No division error with zero answers.
	if r.AvgTime != 0 || r.FastestTime != 0 || r.SlowestTime != 0 {
		t.Errorf("expected zero timing stats, got avg=%v fastest=%v slowest=%v",
			r.AvgTime, r.FastestTime, r.SlowestTime)
	}
}

func TestCalculateResultsScenario(t *testing.T) {
	// Reference scenario: 5 beginner questions, answers
	// [correct, correct, wrong, correct, wrong], times [10,12,8,15,20].
	e := New(10)
	a := e.Create("network-security", "beginner", "")

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, addTestQuestion(t, e, a, 0, model.DifficultyBeginner))
	}
	answers := []int{0, 0, 1, 0, 1}
	times := []float64{10, 12, 8, 15, 20}
	for i, id := range ids {
		if _, err := e.SubmitAnswer(a, id, answers[i], times[i]); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	r, err := e.CalculateResults(a)
	if err != nil {
		t.Fatalf("CalculateResults: %v", err)
	}
	if r.Score != 60.0 {
		t.Errorf("expected score 60.0, got %v", r.Score)
	}
	if r.AvgTime != 13.0 {
		t.Errorf("expected avg_time 13.0, got %v", r.AvgTime)
	}
	if r.FastestTime != 8 {
		t.Errorf("expected fastest 8, got %v", r.FastestTime)
	}
	if r.SlowestTime != 20 {
		t.Errorf("expected slowest 20, got %v", r.SlowestTime)
	}
	if got := PerformanceLevel(r.Score); got != model.LevelIntermediate {
		t.Errorf("expected performance level Intermediate, got %q", got)
	}

	bg := r.DifficultyPerformance[model.DifficultyBeginner]
	if bg.Total != 5 || bg.Correct != 3 {
		t.Errorf("expected beginner bucket 3/5, got %d/%d", bg.Correct, bg.Total)
	}
	if bg.Percentage != 60.0 {
		t.Errorf("expected beginner percentage 60.0, got %v", bg.Percentage)
	}
}

func TestDifficultyBreakdown(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)

	qb := addTestQuestion(t, e, a, 0, model.DifficultyBeginner)
	qi := addTestQuestion(t, e, a, 0, model.DifficultyIntermediate)
	qa := addTestQuestion(t, e, a, 0, model.DifficultyAdvanced)
	qu := addTestQuestion(t, e, a, 0, "") // missing difficulty buckets as intermediate

	// Answer out of question order: buckets follow the answer's question ID,
	// not its position in the answer sequence.
	for _, sub := range []struct {
		id     string
		answer int
	}{
		{qa, 0}, // advanced, correct
		{qb, 1}, // beginner, wrong
		{qu, 0}, // intermediate (defaulted), correct
		{qi, 0}, // intermediate, correct
	} {
		if _, err := e.SubmitAnswer(a, sub.id, sub.answer, 1); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	r, err := e.CalculateResults(a)
	if err != nil {
		t.Fatalf("CalculateResults: %v", err)
	}

	tests := []struct {
		diff       model.Difficulty
		total      int
		correct    int
		percentage float64
	}{
		{model.DifficultyBeginner, 1, 0, 0},
		{model.DifficultyIntermediate, 2, 2, 100},
		{model.DifficultyAdvanced, 1, 1, 100},
	}
	for _, tt := range tests {
		got := r.DifficultyPerformance[tt.diff]
		if got.Total != tt.total || got.Correct != tt.correct {
			t.Errorf("%s: expected %d/%d, got %d/%d", tt.diff, tt.correct, tt.total, got.Correct, got.Total)
		}
		if got.Percentage != tt.percentage {
			t.Errorf("%s: expected percentage %v, got %v", tt.diff, tt.percentage, got.Percentage)
		}
	}
}

func TestDifficultyBreakdownEmptyBucket(t *testing.T) {
	e := New(10)
	a := newTestAssessment(t, e)
	qID := addTestQuestion(t, e, a, 0, model.DifficultyBeginner)
	if _, err := e.SubmitAnswer(a, qID, 0, 1); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	r, err := e.CalculateResults(a)
	if err != nil {
		t.Fatalf("CalculateResults: %v", err)
	}
	adv := r.DifficultyPerformance[model.DifficultyAdvanced]
	if adv.Total != 0 || adv.Percentage != 0 {
		t.Errorf("expected empty advanced bucket with 0 percentage, got %+v", adv)
	}
}

func TestPerformanceLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, model.LevelExpert},
		{90, model.LevelExpert},
		{89.9, model.LevelAdvanced},
		{75, model.LevelAdvanced},
		{60, model.LevelIntermediate},
		{59.9, model.LevelBeginner},
		{40, model.LevelBeginner},
		{39.9, model.LevelNovice},
		{0, model.LevelNovice},
	}
	for _, tt := range tests {
		if got := PerformanceLevel(tt.score); got != tt.want {
			t.Errorf("PerformanceLevel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestRecommendedDifficulty(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		current string
		want    string
	}{
		{"promote beginner", 85, "beginner", "intermediate"},
		{"promote intermediate", 90, "intermediate", "advanced"},
		{"advanced never promoted", 100, "advanced", "advanced"},
		{"demote advanced", 49, "advanced", "intermediate"},
		{"demote intermediate", 30, "intermediate", "beginner"},
		{"beginner never demoted", 10, "beginner", "beginner"},
		{"mid band unchanged", 70, "intermediate", "intermediate"},
		{"mid band lower edge", 50, "advanced", "advanced"},
		{"just below promote", 84.9, "beginner", "beginner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecommendedDifficulty(tt.score, tt.current); got != tt.want {
				t.Errorf("RecommendedDifficulty(%v, %q) = %q, want %q", tt.score, tt.current, got, tt.want)
			}
		})
	}
}
