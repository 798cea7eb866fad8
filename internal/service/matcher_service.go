package service

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
)

// MatchResult is what the matcher knows about an inbound sender. Attempt is
// nil when the sender has no active pointer (or the pointer dangles); a
// non-nil Attempt may still be terminal, which the caller must handle.
type MatchResult struct {
	User    *model.User
	Attempt *model.Attempt
}

// Eligible reports whether the matched attempt can accept a grading signal.
func (m *MatchResult) Eligible() bool {
	return m != nil && m.Attempt != nil && m.Attempt.Status == model.AttemptPending
}

// MatcherService routes an inbound sender address to their active attempt.
type MatcherService interface {
	Match(sender string) (*MatchResult, error)
}

type matcherService struct {
	userRepo    repository.UserRepository
	attemptRepo repository.AttemptRepository
}

func NewMatcherService(userRepo repository.UserRepository, attemptRepo repository.AttemptRepository) MatcherService {
	return &matcherService{userRepo: userRepo, attemptRepo: attemptRepo}
}

// Match resolves sender → user → active attempt. The pointer is a hint, not
// the source of truth: the attempt's own status is re-read so a pointer that
// outlived its attempt never routes a grading signal.
func (s *matcherService) Match(sender string) (*MatchResult, error) {
	email := model.NormalizeEmail(sender)
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if user.ActiveAttemptID == nil || *user.ActiveAttemptID == "" {
		return &MatchResult{User: user}, nil
	}

	attempt, err := s.attemptRepo.FindByID(email, *user.ActiveAttemptID)
	if errors.Is(err, repository.ErrAttemptNotFound) {
		// Dangling pointer; treat the sender as having no active scenario.
		log.Warn().Str("email", email).Str("attemptId", *user.ActiveAttemptID).
			Msg("Active attempt pointer references a missing attempt")
		return &MatchResult{User: user}, nil
	}
	if err != nil {
		return nil, err
	}
	return &MatchResult{User: user, Attempt: attempt}, nil
}
