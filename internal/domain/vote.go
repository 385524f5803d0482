package domain

import (
	"time"
)

// VoteChoice is a binary vote option
type VoteChoice string

const (
	ChoiceYes VoteChoice = "YES"
	ChoiceNo  VoteChoice = "NO"
)

// Valid reports whether the choice is one of the modelled options
func (c VoteChoice) Valid() bool {
	return c == ChoiceYes || c == ChoiceNo
}

// Vote is one member's decision on one agenda
type Vote struct {
	ID        string     `json:"id"`
	AgendaID  string     `json:"agenda_id"`
	UserID    string     `json:"user_id"`
	Choice    VoteChoice `json:"vote"`
	CreatedAt time.Time  `json:"created_at"`
}

// CastVoteRequest is the payload for casting a vote
type CastVoteRequest struct {
	AgendaID string     `json:"agendaId"`
	UserID   string     `json:"userId"`
	Vote     VoteChoice `json:"vote"`
}

// CastVoteResponse carries the stored vote and the refreshed tally
type CastVoteResponse struct {
	Vote  *Vote  `json:"vote"`
	Tally *Tally `json:"tally"`
}
