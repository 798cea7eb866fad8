package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/mail"
	"github.com/pathwise/epistle/internal/metrics"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
	"github.com/pathwise/epistle/internal/scenario"
)

type AttemptService interface {
	// StartScenario begins a new attempt for the user, replacing any previous
	// active attempt as the routing target. For reply-type scenarios the
	// starter email is sent before the attempt exists, so the user never has
	// an active reply-attempt with no email to answer.
	StartScenario(ctx context.Context, email, scenarioID string) (*dto.StartScenarioResponse, error)
	AbandonAttempt(email, attemptID string) error
	GetAttempt(email, attemptID string) (*dto.AttemptDetailDTO, error)
	ListAttempts(email string) ([]dto.AttemptSummaryDTO, error)
	// ActiveAttempt returns the user's current pending attempt, or nil when
	// there is none or the pending attempt has gone stale.
	ActiveAttempt(email string) (*dto.AttemptDetailDTO, error)
}

type attemptService struct {
	userRepo    repository.UserRepository
	attemptRepo repository.AttemptRepository
	grader      GraderService
	mailer      mail.Mailer
	watch       WatchService
	cfg         *config.Config
}

func NewAttemptService(
	userRepo repository.UserRepository,
	attemptRepo repository.AttemptRepository,
	grader GraderService,
	mailer mail.Mailer,
	watch WatchService,
	cfg *config.Config,
) AttemptService {
	return &attemptService{
		userRepo:    userRepo,
		attemptRepo: attemptRepo,
		grader:      grader,
		mailer:      mailer,
		watch:       watch,
		cfg:         cfg,
	}
}

func (s *attemptService) StartScenario(ctx context.Context, email, scenarioID string) (*dto.StartScenarioResponse, error) {
	email = model.NormalizeEmail(email)

	scn, err := scenario.Load(s.cfg.App.ScenarioDir, scenarioID)
	if errors.Is(err, scenario.ErrNotFound) {
		return nil, ErrScenarioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s: %w", scenarioID, err)
	}

	// Opportunistic: an expiring mailbox watch would silently drop the
	// student's reply, so every start is a renewal checkpoint.
	s.watch.EnsureWatch(ctx)

	if scn.InteractionType == scenario.InteractionReply {
		if err := s.sendStarterEmail(ctx, email, scn); err != nil {
			return nil, fmt.Errorf("sending starter email: %w", err)
		}
	}

	attempt := &model.Attempt{
		ID:         uuid.NewString(),
		UserEmail:  email,
		ScenarioID: scn.ID,
		Status:     model.AttemptPending,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.attemptRepo.CreateWithActivePointer(attempt); err != nil {
		return nil, fmt.Errorf("creating attempt: %w", err)
	}

	metrics.AttemptsStarted.WithLabelValues(scn.ID).Inc()
	log.Info().Str("email", email).Str("scenarioId", scn.ID).Str("attemptId", attempt.ID).
		Msg("Scenario started")

	msg := fmt.Sprintf("Scenario '%s' started. Send your email to the coach inbox when ready.", scn.Name)
	if scn.InteractionType == scenario.InteractionReply {
		msg = fmt.Sprintf("Scenario '%s' started. Check your inbox for the first email and reply to it.", scn.Name)
	}
	return &dto.StartScenarioResponse{Success: true, AttemptID: attempt.ID, Message: msg}, nil
}

func (s *attemptService) sendStarterEmail(ctx context.Context, email string, scn *scenario.Scenario) error {
	firstName := ""
	if user, err := s.userRepo.FindByEmail(email); err == nil {
		firstName = user.FirstName()
	} else {
		log.Warn().Err(err).Str("email", email).Msg("Could not load user for starter personalisation")
	}

	body := scn.StarterEmailBody
	if body != "" {
		body = scenario.Personalize(body, firstName)
	} else {
		generated, err := s.grader.StarterBody(ctx, scn, firstName)
		if err != nil {
			return err
		}
		body = generated
	}

	return s.mailer.Send(ctx, mail.Outgoing{
		FromName: scn.StarterSenderName,
		To:       email,
		Subject:  fmt.Sprintf("[PEB:%s] %s", scn.ID, scn.StarterSubject),
		Body:     body,
	})
}

func (s *attemptService) AbandonAttempt(email, attemptID string) error {
	email = model.NormalizeEmail(email)
	attempt, err := s.attemptRepo.FindByID(email, attemptID)
	if err != nil {
		return err
	}
	switch attempt.Status {
	case model.AttemptAbandoned:
		// Already abandoned; abandoning twice is a no-op.
		return nil
	case model.AttemptGraded:
		return ErrInvalidTransition
	}

	claimed, err := s.attemptRepo.TransitionToAbandoned(email, attemptID)
	if err != nil {
		return err
	}
	if !claimed {
		// Lost a race with grading (or another abandon) between the read
		// above and the transition.
		log.Info().Str("attemptId", attemptID).Msg("Abandon lost race with a concurrent transition")
		return ErrInvalidTransition
	}
	log.Info().Str("email", email).Str("attemptId", attemptID).Msg("Attempt abandoned")
	return nil
}

func (s *attemptService) GetAttempt(email, attemptID string) (*dto.AttemptDetailDTO, error) {
	attempt, err := s.attemptRepo.FindByID(email, attemptID)
	if err != nil {
		return nil, err
	}
	return toDetailDTO(attempt)
}

func (s *attemptService) ListAttempts(email string) ([]dto.AttemptSummaryDTO, error) {
	attempts, err := s.attemptRepo.FindAllByUser(email)
	if err != nil {
		return nil, err
	}
	summaries := make([]dto.AttemptSummaryDTO, 0, len(attempts))
	for _, attempt := range attempts {
		var summary dto.AttemptSummaryDTO
		if err := copier.Copy(&summary, &attempt); err != nil {
			return nil, err
		}
		summary.Status = string(attempt.Status)
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *attemptService) ActiveAttempt(email string) (*dto.AttemptDetailDTO, error) {
	email = model.NormalizeEmail(email)
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ActiveAttemptID == nil || *user.ActiveAttemptID == "" {
		return nil, nil
	}

	attempt, err := s.attemptRepo.FindByID(email, *user.ActiveAttemptID)
	if errors.Is(err, repository.ErrAttemptNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// The pointer is only a hint; a terminal attempt is not active whatever
	// the pointer says.
	if attempt.Status != model.AttemptPending {
		return nil, nil
	}
	// Stale pending attempts are not offered for UI restore; they remain
	// gradeable until explicitly abandoned.
	if time.Since(attempt.StartedAt) > s.cfg.App.AttemptStaleAfter {
		return nil, nil
	}
	return toDetailDTO(attempt)
}

func toDetailDTO(attempt *model.Attempt) (*dto.AttemptDetailDTO, error) {
	var detail dto.AttemptDetailDTO
	if err := copier.Copy(&detail, attempt); err != nil {
		return nil, err
	}
	detail.Status = string(attempt.Status)
	return &detail, nil
}
