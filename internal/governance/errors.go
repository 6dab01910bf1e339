package governance

import "errors"

var (
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrVotingClosed        = errors.New("voting is closed")
	ErrInvalidVoteStrength = errors.New("invalid vote strength")
	ErrNotEligible         = errors.New("not eligible to vote")
	ErrAlreadyVoted        = errors.New("already voted on this proposal")
	ErrInvalidTransition   = errors.New("invalid proposal status transition")
)
