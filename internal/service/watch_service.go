package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/mail"
	"github.com/pathwise/epistle/internal/metrics"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
)

// WatchService keeps the mailbox push subscription alive. EnsureWatch is
// called opportunistically from user-facing flows; it must be cheap when the
// watch is healthy and must never fail the calling operation.
type WatchService interface {
	EnsureWatch(ctx context.Context)
}

type watchService struct {
	repo   repository.WatchRepository
	mailer mail.Mailer
	cfg    *config.Config

	mu sync.Mutex
	// cachedExpiry lets healthy calls skip the database entirely. Zero until
	// the first successful renewal (or read) on this instance.
	cachedExpiry time.Time
}

func NewWatchService(repo repository.WatchRepository, mailer mail.Mailer, cfg *config.Config) WatchService {
	return &watchService{repo: repo, mailer: mailer, cfg: cfg}
}

// ShouldClaimRenewal decides whether this instance should take the renewal
// claim given the shared watch record. seen is nil when no record exists yet.
func ShouldClaimRenewal(seen *model.WatchStatus, now time.Time, renewBuffer, claimTimeout time.Duration) bool {
	if seen == nil {
		return true
	}
	switch seen.Status {
	case model.WatchCompleted:
		// Renew only inside the buffer window before expiry.
		if seen.ExpiresAt != nil && seen.ExpiresAt.Sub(now) > renewBuffer {
			return false
		}
		return true
	case model.WatchRenewing:
		// Another instance holds the claim; steal it only once the claim
		// is old enough to be presumed dead.
		if seen.ClaimedAt != nil && now.Sub(*seen.ClaimedAt) < claimTimeout {
			return false
		}
		return true
	default:
		return true
	}
}

func (s *watchService) EnsureWatch(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	if !s.cachedExpiry.IsZero() && s.cachedExpiry.Sub(now) > s.cfg.Watch.RenewBuffer {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	claimed, seen, err := s.repo.TryClaim(now, func(st *model.WatchStatus) bool {
		return ShouldClaimRenewal(st, now, s.cfg.Watch.RenewBuffer, s.cfg.Watch.ClaimTimeout)
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to read/claim watch status")
		metrics.WatchRenewals.WithLabelValues("failed").Inc()
		return
	}
	if !claimed {
		// Someone else renewed recently or holds a live claim; remember the
		// expiry we saw so the fast path works next time.
		if seen != nil && seen.ExpiresAt != nil {
			s.mu.Lock()
			s.cachedExpiry = *seen.ExpiresAt
			s.mu.Unlock()
		}
		metrics.WatchRenewals.WithLabelValues("skipped").Inc()
		return
	}

	expiresAt, err := s.mailer.Watch(ctx)
	if err != nil {
		// Leave the record in "renewing"; the claim timeout lets the next
		// caller retry once this claim goes stale.
		log.Error().Err(err).Msg("Watch registration failed")
		metrics.WatchRenewals.WithLabelValues("failed").Inc()
		return
	}

	if err := s.repo.Complete(expiresAt, time.Now().UTC()); err != nil {
		log.Error().Err(err).Msg("Failed to record completed watch renewal")
		metrics.WatchRenewals.WithLabelValues("failed").Inc()
		return
	}

	s.mu.Lock()
	s.cachedExpiry = expiresAt
	s.mu.Unlock()
	metrics.WatchRenewals.WithLabelValues("renewed").Inc()
	log.Info().Time("expiresAt", expiresAt).Msg("Mailbox watch renewed")
}
