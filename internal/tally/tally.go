// Package tally derives vote outcomes and percentages from yes/no counters.
package tally

import (
	"coopvote/internal/domain"
)

// Outcome classifies a finished vote
func Outcome(yes, no, total int) domain.AgendaResult {
	switch {
	case total == 0:
		return domain.ResultUnvoted
	case yes > no:
		return domain.ResultApproved
	case no > yes:
		return domain.ResultRejected
	default:
		return domain.ResultTie
	}
}

// Percentage returns round-half-up(100*part/total), or 0 when total is 0.
// Integer arithmetic keeps the rounding exact.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// Project builds the tally view of an agenda. The result reported is the stored
// one for finished agendas and UNVOTED otherwise.
func Project(a *domain.Agenda) *domain.Tally {
	result := domain.ResultUnvoted
	if a.Status == domain.StatusFinished {
		result = a.Result
	}
	return &domain.Tally{
		AgendaID:      a.ID,
		YesVotes:      a.YesVotes,
		NoVotes:       a.NoVotes,
		TotalVotes:    a.TotalVotes,
		YesPercentage: Percentage(a.YesVotes, a.TotalVotes),
		NoPercentage:  Percentage(a.NoVotes, a.TotalVotes),
		Result:        result,
		Leading:       Leading(a),
		Status:        a.Status,
	}
}

// Leading reports the outcome the current counters would produce if the agenda closed now
func Leading(a *domain.Agenda) domain.AgendaResult {
	return Outcome(a.YesVotes, a.NoVotes, a.TotalVotes)
}
