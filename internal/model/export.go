package model

import "time"

// AssessmentExport is the top-level JSON structure for results export.
type AssessmentExport struct {
	ExportedAt  time.Time             `json:"exported_at"`
	Count       int                   `json:"count"`
	Assessments []CompletedAssessment `json:"assessments"`
}

// CompletedAssessment pairs a finished assessment with its computed results.
type CompletedAssessment struct {
	Assessment            Assessment `json:"assessment"`
	Results               Results    `json:"results"`
	PerformanceLevel      string     `json:"performance_level"`
	RecommendedDifficulty string     `json:"recommended_difficulty"`
}
