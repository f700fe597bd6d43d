package engine

import (
	"log/slog"

	"github.com/cybered/assessor/internal/model"
)

// RecordResult folds one completed assessment into the rolling statistics
// record: count, cumulative score, running average, history, and badges.
// The expert badge is awarded at most once; badges are never revoked.
func RecordResult(stats *model.UserStats, r *model.Results, level string) {
	stats.TotalAssessments++
	stats.TotalScore += r.Score
	stats.AvgScore = round2(stats.TotalScore / float64(stats.TotalAssessments))

	stats.History = append(stats.History, model.HistoryEntry{
		Date:             r.CompletionDate,
		Domain:           r.Domain,
		Score:            r.Score,
		PerformanceLevel: level,
	})

	if r.Score >= 90 && !stats.HasBadge(model.BadgeExpert) {
		stats.Badges = append(stats.Badges, model.BadgeExpert)
		slog.Info("expert badge awarded")
	}
	if stats.TotalAssessments == 1 {
		stats.Badges = append(stats.Badges, model.BadgeFirstAssessment)
		slog.Info("first assessment badge awarded")
	}
}
