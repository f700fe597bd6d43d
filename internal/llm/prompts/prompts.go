// Package prompts builds the natural-language prompts sent to the question
// and feedback generator. Templates are embedded and loaded once.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	loadOnce     sync.Once
	loadErr      error
	questionTmpl *template.Template
	feedbackTmpl *template.Template
)

// domainDescriptions expands a known domain slug into topic guidance for the
// generator. Unknown domains pass through verbatim.
var domainDescriptions = map[string]string{
	"network-security":  "network security, firewalls, intrusion detection, DDoS attacks, VPNs, network protocols",
	"secure-coding":     "secure software development, OWASP vulnerabilities, SQL injection, XSS, authentication, encryption",
	"incident-response": "cybersecurity incident response, forensics, containment, recovery, threat hunting, SIEM",
}

var difficultyDescriptions = map[string]string{
	"beginner":     "basic foundational concepts with clear scenarios",
	"intermediate": "moderate complexity requiring practical knowledge",
	"advanced":     "complex scenarios requiring expert-level analysis",
}

// QuestionData holds template data for question prompts.
type QuestionData struct {
	Domain                string
	DomainDescription     string
	Difficulty            string
	DifficultyDescription string
}

// FeedbackData holds template data for feedback prompts.
type FeedbackData struct {
	Domain     string
	Score      float64
	Correct    int
	Total      int
	Difficulty string
	AvgTime    float64
}

func load() error {
	loadOnce.Do(func() {
		questionTmpl, loadErr = template.ParseFS(templateFS, "templates/question.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse question template: %w", loadErr)
			return
		}
		feedbackTmpl, loadErr = template.ParseFS(templateFS, "templates/feedback.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse feedback template: %w", loadErr)
		}
	})
	return loadErr
}

// BuildQuestionPrompt builds the generation prompt for one question.
func BuildQuestionPrompt(domain, difficulty string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	data := QuestionData{
		Domain:                domain,
		DomainDescription:     describe(domainDescriptions, domain),
		Difficulty:            difficulty,
		DifficultyDescription: describe(difficultyDescriptions, difficulty),
	}

	var buf bytes.Buffer
	if err := questionTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildFeedbackPrompt builds the prompt for post-assessment feedback.
func BuildFeedbackPrompt(data FeedbackData) (string, error) {
	if err := load(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := feedbackTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func describe(m map[string]string, key string) string {
	if d, ok := m[key]; ok {
		return d
	}
	return key
}
