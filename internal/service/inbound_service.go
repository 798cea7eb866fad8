package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/mail"
	"github.com/pathwise/epistle/internal/metrics"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
	"github.com/pathwise/epistle/internal/scenario"
)

// Processed dedup records older than this are purged on each notification.
// Long past any plausible push redelivery window.
const dedupRetention = 48 * time.Hour

// InboundService consumes mailbox push notifications and runs the grading
// pipeline for each new student email.
type InboundService interface {
	// ProcessNotification handles one push delivery. A returned error means
	// the delivery should be retried (non-2xx to the push endpoint); nil
	// means the notification is fully consumed even if individual messages
	// were skipped.
	ProcessNotification(ctx context.Context, payload dto.PubSubPushRequest) error
}

type inboundService struct {
	matcher       MatcherService
	attemptRepo   repository.AttemptRepository
	processedRepo repository.ProcessedMessageRepository
	grader        GraderService
	mailer        mail.Mailer
	rubric        *scenario.Rubric
	cfg           *config.Config
}

func NewInboundService(
	matcher MatcherService,
	attemptRepo repository.AttemptRepository,
	processedRepo repository.ProcessedMessageRepository,
	grader GraderService,
	mailer mail.Mailer,
	rubric *scenario.Rubric,
	cfg *config.Config,
) InboundService {
	return &inboundService{
		matcher:       matcher,
		attemptRepo:   attemptRepo,
		processedRepo: processedRepo,
		grader:        grader,
		mailer:        mailer,
		rubric:        rubric,
		cfg:           cfg,
	}
}

func (s *inboundService) ProcessNotification(ctx context.Context, payload dto.PubSubPushRequest) error {
	var notif dto.GmailNotification
	if err := json.Unmarshal(payload.Message.Data, &notif); err != nil {
		// Garbage payloads must not be redelivered forever.
		log.Warn().Err(err).Str("pubsubMessageId", payload.Message.MessageID).
			Msg("Unparseable notification payload, dropping")
		return nil
	}
	if notif.HistoryID == 0 {
		log.Warn().Str("pubsubMessageId", payload.Message.MessageID).
			Msg("Notification carries no history cursor, dropping")
		return nil
	}

	if purged, err := s.processedRepo.PurgeOlderThan(time.Now().UTC().Add(-dedupRetention)); err != nil {
		log.Warn().Err(err).Msg("Failed to purge old dedup records")
	} else if purged > 0 {
		log.Debug().Int64("purged", purged).Msg("Purged old dedup records")
	}

	messages, err := s.mailer.HistorySince(ctx, notif.HistoryID)
	if err != nil {
		// Transient mailbox failure; let the push get redelivered.
		return fmt.Errorf("fetching history %d: %w", notif.HistoryID, err)
	}
	if len(messages) == 0 {
		// The history window can lag or expire; fall back to the newest
		// message so a student email is not silently lost.
		latest, err := s.mailer.Latest(ctx)
		if err != nil {
			return fmt.Errorf("fetching latest message: %w", err)
		}
		if latest == nil {
			return nil
		}
		messages = []*mail.Inbound{latest}
	}

	for _, msg := range messages {
		if err := s.processMessage(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *inboundService) processMessage(ctx context.Context, msg *mail.Inbound) error {
	logger := log.With().Str("messageId", msg.ID).Str("sender", msg.Sender).Logger()

	if msg.Sender == "" ||
		msg.Sender == model.NormalizeEmail(s.cfg.Gmail.BotEmail) ||
		strings.Contains(msg.Sender, "noreply") ||
		strings.Contains(msg.Sender, "no-reply") {
		logger.Debug().Msg("Skipping self/no-reply message")
		return nil
	}

	processed, err := s.processedRepo.IsProcessed(msg.ID)
	if err != nil {
		return fmt.Errorf("checking dedup for %s: %w", msg.ID, err)
	}
	if processed {
		logger.Info().Msg("Message already processed, skipping")
		metrics.EmailsProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}

	match, err := s.matcher.Match(msg.Sender)
	if err != nil {
		return fmt.Errorf("matching sender %s: %w", msg.Sender, err)
	}

	if match == nil || match.Attempt == nil {
		logger.Info().Msg("No active attempt for sender, redirecting")
		s.sendRedirect(ctx, msg)
		metrics.EmailsProcessed.WithLabelValues("unsolicited").Inc()
		return s.markProcessed(msg.ID)
	}

	if !match.Eligible() {
		switch match.Attempt.Status {
		case model.AttemptGraded:
			// The attempt already has its result; a late or duplicated
			// signal changes nothing.
			logger.Info().Str("attemptId", match.Attempt.ID).Msg("Attempt already graded, ignoring message")
			metrics.EmailsProcessed.WithLabelValues("duplicate").Inc()
		default:
			logger.Warn().Str("attemptId", match.Attempt.ID).Str("status", string(match.Attempt.Status)).
				Msg("Active pointer references a terminal attempt, ignoring message")
			metrics.EmailsProcessed.WithLabelValues("invalid_transition").Inc()
		}
		return s.markProcessed(msg.ID)
	}

	attempt := match.Attempt
	scn, err := scenario.Load(s.cfg.App.ScenarioDir, attempt.ScenarioID)
	if err != nil {
		// A deleted scenario behind a live attempt is a data problem, not a
		// transient one; retrying the delivery will not help.
		logger.Error().Err(err).Str("scenarioId", attempt.ScenarioID).
			Msg("Cannot load scenario for active attempt")
		return s.markProcessed(msg.ID)
	}

	var prior []ThreadMessage
	if scn.InteractionType == scenario.InteractionReply && scn.StarterEmailBody != "" {
		prior = append(prior, ThreadMessage{
			Sender:  scn.StarterSenderName,
			Subject: scn.StarterSubject,
			Body:    scenario.Personalize(scn.StarterEmailBody, match.User.FirstName()),
		})
	}
	student := ThreadMessage{Sender: msg.Sender, Subject: msg.Subject, Body: msg.Body}

	evaluation, err := s.grader.Evaluate(ctx, scn, prior, student, s.rubric)
	if err != nil {
		// Grading is the one step where failure must leave the attempt
		// pending and the message unmarked: redelivery is the retry path.
		metrics.GradingFailures.Inc()
		return fmt.Errorf("grading attempt %s: %w", attempt.ID, err)
	}
	grading := evaluation.Grading

	claimed, err := s.attemptRepo.TransitionToGraded(attempt.UserEmail, attempt.ID, model.GradedFields{
		Score:           grading.TotalScore,
		MaxScore:        grading.MaxTotalScore,
		Feedback:        grading.OverallComment,
		RubricScores:    grading.Scores,
		RevisionExample: grading.RevisionExample,
	})
	if err != nil {
		return fmt.Errorf("recording grade for attempt %s: %w", attempt.ID, err)
	}
	if !claimed {
		// A concurrent delivery graded (or an abandon landed) first. The
		// stored result stands; ours is discarded.
		logger.Info().Str("attemptId", attempt.ID).Msg("Lost grading race, discarding result")
		metrics.EmailsProcessed.WithLabelValues("duplicate").Inc()
		return s.markProcessed(msg.ID)
	}

	metrics.EmailsProcessed.WithLabelValues("graded").Inc()
	logger.Info().Str("attemptId", attempt.ID).
		Int("score", grading.TotalScore).Int("maxScore", grading.MaxTotalScore).
		Msg("Attempt graded")

	if err := s.markProcessed(msg.ID); err != nil {
		return err
	}

	// Best effort: the grade is committed, a failed reply must not fail the
	// delivery and trigger a second grading.
	replyBody := buildReplyBody(evaluation)
	if err := s.mailer.Reply(ctx, msg, replyBody); err != nil {
		logger.Error().Err(err).Str("attemptId", attempt.ID).Msg("Failed to send feedback reply")
	}
	return nil
}

func (s *inboundService) sendRedirect(ctx context.Context, msg *mail.Inbound) {
	body := "Hi!\n\n" +
		"Thanks for your email. I couldn't find an active practice scenario for this address.\n\n" +
		"To practice, start a scenario from the portal first"
	if s.cfg.App.PortalURL != "" {
		body += ": " + s.cfg.App.PortalURL
	}
	body += "\n\n— Pathwise Email Coach"

	if err := s.mailer.Reply(ctx, msg, body); err != nil {
		log.Error().Err(err).Str("messageId", msg.ID).Msg("Failed to send redirect reply")
	}
}

func (s *inboundService) markProcessed(messageID string) error {
	if _, err := s.processedRepo.MarkProcessed(messageID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking %s processed: %w", messageID, err)
	}
	return nil
}

// buildReplyBody assembles the email the student receives back: the
// counterpart's in-character reply followed by the grading breakdown.
func buildReplyBody(evaluation *Evaluation) string {
	grading := evaluation.Grading

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(evaluation.CounterpartReply))
	sb.WriteString("\n\n--- FEEDBACK ---\n")
	fmt.Fprintf(&sb, "Score: %d/%d\n\n", grading.TotalScore, grading.MaxTotalScore)
	for _, item := range grading.Scores {
		fmt.Fprintf(&sb, "  • %s: %d/%d", item.Name, item.Score, item.MaxScore)
		if item.Justification != "" {
			fmt.Fprintf(&sb, " — %s", item.Justification)
		}
		sb.WriteString("\n")
	}
	if grading.OverallComment != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(grading.OverallComment))
		sb.WriteString("\n")
	}
	if grading.RevisionExample != "" {
		sb.WriteString("\n--- EXAMPLE: How to get 100% ---\n")
		sb.WriteString(strings.TrimSpace(grading.RevisionExample))
		sb.WriteString("\n")
	}
	return sb.String()
}
