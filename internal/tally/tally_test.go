package tally

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coopvote/internal/domain"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name           string
		yes, no, total int
		want           domain.AgendaResult
	}{
		{"no votes", 0, 0, 0, domain.ResultUnvoted},
		{"approved", 7, 3, 10, domain.ResultApproved},
		{"rejected", 2, 5, 7, domain.ResultRejected},
		{"tie", 5, 5, 10, domain.ResultTie},
		{"single yes", 1, 0, 1, domain.ResultApproved},
		{"single no", 0, 1, 1, domain.ResultRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.yes, tt.no, tt.total))
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int
		want        int
	}{
		{0, 0, 0},
		{7, 10, 70},
		{3, 10, 30},
		{1, 3, 33},
		{2, 3, 67},
		// 12.5 and 0.5 round up
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{5, 5, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.part, tt.total), "%d/%d", tt.part, tt.total)
	}
}

func TestPercentagesNeedNotSumTo100(t *testing.T) {
	// 1/8 and 7/8 round to 13 and 88
	assert.Equal(t, 101, Percentage(1, 8)+Percentage(7, 8))
}

func TestProject(t *testing.T) {
	t.Run("approved scenario", func(t *testing.T) {
		a := &domain.Agenda{ID: "a1", Status: domain.StatusFinished, Result: domain.ResultApproved, YesVotes: 7, NoVotes: 3, TotalVotes: 10}
		got := Project(a)
		assert.Equal(t, domain.ResultApproved, got.Result)
		assert.Equal(t, 70, got.YesPercentage)
		assert.Equal(t, 30, got.NoPercentage)
		assert.Equal(t, domain.StatusFinished, got.Status)
	})

	t.Run("in progress reports unvoted result", func(t *testing.T) {
		a := &domain.Agenda{ID: "a1", Status: domain.StatusInProgress, YesVotes: 5, NoVotes: 5, TotalVotes: 10}
		got := Project(a)
		assert.Equal(t, domain.ResultUnvoted, got.Result)
		assert.Equal(t, domain.ResultTie, got.Leading)
	})

	t.Run("empty agenda", func(t *testing.T) {
		got := Project(&domain.Agenda{ID: "a1", Status: domain.StatusOpen})
		assert.Equal(t, 0, got.YesPercentage)
		assert.Equal(t, 0, got.NoPercentage)
		assert.Equal(t, domain.ResultUnvoted, got.Result)
	})
}
