package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cybered/assessor/internal/llm/prompts"
	"github.com/cybered/assessor/internal/model"
)

// ErrIncomplete indicates the generator returned a parseable object that is
// missing a required field. No partial object is ever returned.
var ErrIncomplete = errors.New("incomplete generator response")

// GeneratedQuestion is the raw question object produced by the generator,
// before the engine assigns it an ID. Correct is a pointer so a missing field
// can be told apart from a legitimate zero index.
type GeneratedQuestion struct {
	Title          string   `json:"title"`
	Context        string   `json:"context"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Correct        *int     `json:"correct"`
	Explanation    string   `json:"explanation"`
	LearningPoints []string `json:"learningPoints"`
	Sources        []string `json:"sources"`
	Difficulty     string   `json:"difficulty"`
	Domain         string   `json:"domain"`
}

// ToQuestion converts the generator payload into a domain question.
func (g *GeneratedQuestion) ToQuestion() model.Question {
	return model.Question{
		Title:          g.Title,
		Context:        g.Context,
		Text:           g.Question,
		Options:        g.Options,
		Correct:        *g.Correct,
		Difficulty:     model.Difficulty(g.Difficulty),
		Domain:         g.Domain,
		Explanation:    g.Explanation,
		LearningPoints: g.LearningPoints,
		Sources:        g.Sources,
	}
}

// Client wraps an OpenAI-compatible API for question and feedback generation.
// Each call is a single best-effort attempt: no retry, backoff, or rate
// limiting happens at this layer.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// New creates a generator client against an OpenAI-compatible endpoint.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: 0.7,
		maxTokens:   2048,
	}
}

// SetSampling overrides the default temperature and token limit.
func (c *Client) SetSampling(temperature float32, maxTokens int) {
	c.temperature = temperature
	c.maxTokens = maxTokens
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	return nil
}

// GenerateQuestion produces one scenario question for the given domain and
// difficulty, or an error if the provider call fails or returns unparseable
// or incomplete content.
func (c *Client) GenerateQuestion(ctx context.Context, domain, difficulty string) (*GeneratedQuestion, error) {
	prompt, err := prompts.BuildQuestionPrompt(domain, difficulty)
	if err != nil {
		return nil, fmt.Errorf("build question prompt: %w", err)
	}

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}

	q, err := parseQuestion(raw)
	if err != nil {
		return nil, fmt.Errorf("parse question response: %w", err)
	}
	slog.Info("question generated", "title", q.Title, "domain", domain, "difficulty", difficulty)
	return q, nil
}

// GenerateQuestionBatch issues the single-question operation count times
// sequentially, tolerating individual failures. The returned slice may be
// shorter than count; callers must check its length.
func (c *Client) GenerateQuestionBatch(ctx context.Context, domain, difficulty string, count int) []GeneratedQuestion {
	questions := make([]GeneratedQuestion, 0, count)
	for i := 0; i < count; i++ {
		q, err := c.GenerateQuestion(ctx, domain, difficulty)
		if err != nil {
			slog.Warn("batch question failed", "attempt", i+1, "of", count, "error", err)
			continue
		}
		questions = append(questions, *q)
	}
	slog.Info("generated question batch", "requested", count, "generated", len(questions))
	return questions
}

// GenerateFeedback produces personalized feedback and a learning path for a
// completed assessment.
func (c *Client) GenerateFeedback(ctx context.Context, r *model.Results) (*model.Feedback, error) {
	prompt, err := prompts.BuildFeedbackPrompt(prompts.FeedbackData{
		Domain:     r.Domain,
		Score:      r.Score,
		Correct:    r.Correct,
		Total:      r.TotalQuestions,
		Difficulty: r.Difficulty,
		AvgTime:    r.AvgTime,
	})
	if err != nil {
		return nil, fmt.Errorf("build feedback prompt: %w", err)
	}

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate feedback: %w", err)
	}

	fb, err := parseFeedback(raw)
	if err != nil {
		return nil, fmt.Errorf("parse feedback response: %w", err)
	}
	slog.Info("feedback generated", "assessment_id", r.AssessmentID)
	return fb, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func parseQuestion(raw string) (*GeneratedQuestion, error) {
	text := stripCodeFence(raw)

	var q GeneratedQuestion
	if err := json.Unmarshal([]byte(text), &q); err != nil {
		return nil, fmt.Errorf("unmarshal: %w (raw: %s)", err, truncate(raw, 200))
	}

	for _, f := range []struct {
		name    string
		missing bool
	}{
		{"title", q.Title == ""},
		{"context", q.Context == ""},
		{"question", q.Question == ""},
		{"options", len(q.Options) == 0},
		{"correct", q.Correct == nil},
		{"explanation", q.Explanation == ""},
	} {
		if f.missing {
			return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, f.name)
		}
	}
	return &q, nil
}

func parseFeedback(raw string) (*model.Feedback, error) {
	text := stripCodeFence(raw)

	var fb model.Feedback
	if err := json.Unmarshal([]byte(text), &fb); err != nil {
		return nil, fmt.Errorf("unmarshal: %w (raw: %s)", err, truncate(raw, 200))
	}

	if fb.FeedbackSummary == "" {
		return nil, fmt.Errorf("%w: missing feedbackSummary", ErrIncomplete)
	}
	if len(fb.LearningPath) == 0 {
		return nil, fmt.Errorf("%w: missing learningPath", ErrIncomplete)
	}
	return &fb, nil
}

// stripCodeFence removes an optional markdown code fence wrapping the JSON
// payload.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
