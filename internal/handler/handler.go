package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cybered/assessor/internal/engine"
	appI18n "github.com/cybered/assessor/internal/i18n"
	"github.com/cybered/assessor/internal/llm"
	"github.com/cybered/assessor/internal/model"
	"github.com/cybered/assessor/internal/store"
)

const (
	defaultDomain     = "network-security"
	defaultDifficulty = "beginner"
)

// Generator produces assessment questions and completion feedback.
// *llm.Client satisfies it; tests substitute a stub.
type Generator interface {
	GenerateQuestion(ctx context.Context, domain, difficulty string) (*llm.GeneratedQuestion, error)
	GenerateFeedback(ctx context.Context, r *model.Results) (*model.Feedback, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	generator Generator
	engine    *engine.Engine
	config    model.Config
}

// New creates a new Handler.
func New(s *store.Store, g Generator, e *engine.Engine, cfg model.Config) *Handler {
	return &Handler{store: s, generator: g, engine: e, config: cfg}
}

// Routes registers all HTTP routes. Every route runs behind the session
// middleware so handlers can assume a session in context.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.sessionMiddleware)
		r.Post("/assessment", h.handleCreateAssessment)
		r.Get("/assessment/question", h.handleGetQuestion)
		r.Post("/assessment/answer", h.handleSubmitAnswer)
		r.Get("/assessment/results", h.handleGetResults)
		r.Get("/stats", h.handleGetStats)
	})
}

type createRequest struct {
	Domain     string `json:"domain"`
	Difficulty string `json:"difficulty"`
}

type createResponse struct {
	AssessmentID   string `json:"assessment_id"`
	Domain         string `json:"domain"`
	Difficulty     string `json:"difficulty"`
	TotalQuestions int    `json:"total_questions"`
}

func (h *Handler) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, http.StatusBadRequest, "InvalidRequest")
			return
		}
	}
	if req.Domain == "" {
		req.Domain = defaultDomain
	}
	if req.Difficulty == "" {
		req.Difficulty = defaultDifficulty
	}

	sess := model.SessionFromContext(r.Context())
	a := h.engine.Create(req.Domain, req.Difficulty, sess.Token)
	if err := h.store.CreateAssessment(a); err != nil {
		slog.Error("create assessment", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	if err := h.store.SetSessionAssessment(sess.Token, a.ID); err != nil {
		slog.Error("bind assessment to session", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	slog.Info("assessment started", "id", a.ID, "domain", a.Domain, "difficulty", a.Difficulty)
	h.writeJSON(w, http.StatusCreated, createResponse{
		AssessmentID:   a.ID,
		Domain:         a.Domain,
		Difficulty:     a.Difficulty,
		TotalQuestions: h.engine.MaxQuestions(),
	})
}

// questionView is the client-facing projection of a question. The correct
// index and explanation stay hidden until the answer is submitted.
type questionView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Context        string   `json:"context"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Difficulty     string   `json:"difficulty"`
	QuestionNumber int      `json:"question_number"`
	TotalQuestions int      `json:"total_questions"`
}

type questionResponse struct {
	Complete bool          `json:"complete"`
	Question *questionView `json:"question,omitempty"`
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	a, ok := h.activeAssessment(w, r, sess)
	if !ok {
		return
	}

	if a.Status == model.StatusComplete {
		h.writeJSON(w, http.StatusOK, questionResponse{Complete: true})
		return
	}

	// The cursor points past the stored questions until the next one is
	// generated. Generation failures leave the assessment untouched.
	if a.CurrentQuestion >= len(a.Questions) {
		gen, err := h.generator.GenerateQuestion(r.Context(), a.Domain, a.Difficulty)
		if err != nil {
			slog.Error("question generation failed", "assessment_id", a.ID, "error", err)
			h.writeError(w, r, http.StatusBadGateway, "GenerationFailed")
			return
		}
		q := gen.ToQuestion()
		if _, err := h.engine.AddQuestion(a, q); err != nil {
			slog.Error("add question", "assessment_id", a.ID, "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "InternalError")
			return
		}
		added := a.Questions[len(a.Questions)-1]
		if err := h.store.AppendQuestion(a.ID, added, len(a.Questions)-1); err != nil {
			slog.Error("persist question", "assessment_id", a.ID, "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "InternalError")
			return
		}
	}

	// Start the timer only on first delivery; a refresh must not reset it.
	if sess.QuestionStartedAt == nil {
		now := time.Now()
		if err := h.store.SetQuestionStartTime(sess.Token, &now); err != nil {
			slog.Error("start question timer", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "InternalError")
			return
		}
	}

	q := a.Questions[a.CurrentQuestion]
	h.writeJSON(w, http.StatusOK, questionResponse{
		Question: &questionView{
			ID:             q.ID,
			Title:          q.Title,
			Context:        q.Context,
			Question:       q.Text,
			Options:        q.Options,
			Difficulty:     string(q.Difficulty),
			QuestionNumber: a.CurrentQuestion + 1,
			TotalQuestions: h.engine.MaxQuestions(),
		},
	})
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     int    `json:"answer"`
}

type answerResponse struct {
	*model.AnswerResult
	AssessmentComplete bool `json:"assessment_complete"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if req.QuestionID == "" {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	sess := model.SessionFromContext(r.Context())
	a, ok := h.activeAssessment(w, r, sess)
	if !ok {
		return
	}

	// Time taken comes from the server-side timer, never the client.
	var timeTaken float64
	if sess.QuestionStartedAt != nil {
		if d := time.Since(*sess.QuestionStartedAt).Seconds(); d > 0 {
			timeTaken = d
		}
	}

	result, err := h.engine.SubmitAnswer(a, req.QuestionID, req.Answer, timeTaken)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrQuestionNotFound):
		h.writeError(w, r, http.StatusNotFound, "QuestionNotFound")
		return
	case errors.Is(err, engine.ErrAlreadyAnswered):
		h.writeError(w, r, http.StatusConflict, "AlreadyAnswered")
		return
	case errors.Is(err, engine.ErrAssessmentComplete):
		h.writeError(w, r, http.StatusBadRequest, "AssessmentComplete")
		return
	default:
		slog.Error("submit answer", "assessment_id", a.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	if err := h.store.AppendAnswer(a, a.Answers[len(a.Answers)-1]); err != nil {
		slog.Error("persist answer", "assessment_id", a.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	if err := h.store.SetQuestionStartTime(sess.Token, nil); err != nil {
		slog.Error("clear question timer", "error", err)
	}

	h.writeJSON(w, http.StatusOK, answerResponse{
		AnswerResult:       result,
		AssessmentComplete: a.Status == model.StatusComplete,
	})
}

type resultsResponse struct {
	Results               *model.Results  `json:"results"`
	PerformanceLevel      string          `json:"performance_level"`
	RecommendedDifficulty string          `json:"recommended_difficulty"`
	Feedback              *model.Feedback `json:"feedback"`
}

func (h *Handler) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	a, ok := h.activeAssessment(w, r, sess)
	if !ok {
		return
	}

	results, err := h.engine.CalculateResults(a)
	if errors.Is(err, engine.ErrNoQuestions) {
		h.writeError(w, r, http.StatusBadRequest, "EmptyAssessment")
		return
	}
	if err != nil {
		slog.Error("calculate results", "assessment_id", a.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	level := engine.PerformanceLevel(results.Score)

	if a.Status == model.StatusComplete {
		if err := h.recordStatsOnce(sess.Token, a.ID, results, level); err != nil {
			slog.Error("record stats", "assessment_id", a.ID, "error", err)
		}
	}

	// Feedback is best effort: a generator failure degrades to null.
	feedback, err := h.generator.GenerateFeedback(r.Context(), results)
	if err != nil {
		slog.Warn("feedback generation failed", "assessment_id", a.ID, "error", err)
		feedback = nil
	}

	h.writeJSON(w, http.StatusOK, resultsResponse{
		Results:               results,
		PerformanceLevel:      level,
		RecommendedDifficulty: engine.RecommendedDifficulty(results.Score, a.Difficulty),
		Feedback:              feedback,
	})
}

// recordStatsOnce folds the result into the session statistics the first time
// the results are fetched for a completed assessment.
func (h *Handler) recordStatsOnce(token, assessmentID string, results *model.Results, level string) error {
	recorded, err := h.store.StatsRecorded(assessmentID)
	if err != nil || recorded {
		return err
	}
	stats, err := h.store.GetUserStats(token)
	if err != nil {
		return err
	}
	engine.RecordResult(stats, results, level)
	if err := h.store.SaveUserStats(token, stats); err != nil {
		return err
	}
	return h.store.MarkStatsRecorded(assessmentID)
}

func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	sess := model.SessionFromContext(r.Context())
	stats, err := h.store.GetUserStats(sess.Token)
	if err != nil {
		slog.Error("get user stats", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// activeAssessment loads the session's current assessment, writing a 404 when
// the session has none or it no longer exists.
func (h *Handler) activeAssessment(w http.ResponseWriter, r *http.Request, sess *model.Session) (*model.Assessment, bool) {
	if sess.AssessmentID == "" {
		h.writeError(w, r, http.StatusNotFound, "NoActiveAssessment")
		return nil, false
	}
	a, err := h.store.GetAssessment(sess.AssessmentID)
	if err != nil {
		slog.Error("get assessment", "id", sess.AssessmentID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return nil, false
	}
	if a == nil {
		h.writeError(w, r, http.StatusNotFound, "NoActiveAssessment")
		return nil, false
	}
	return a, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	h.writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}
