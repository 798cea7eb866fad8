package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pathwise/epistle/internal/mail"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/repository"
	"github.com/pathwise/epistle/internal/scenario"
)

// In-memory repository fakes. They mirror the transactional semantics of the
// real implementations (conditional transitions, conditional pointer clears)
// without a database.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) FindByEmail(email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[model.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) Save(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *user
	f.users[model.NormalizeEmail(user.Email)] = &clone
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]*model.Attempt
	users    *fakeUserRepo

	createCalls []string
	createErr   error
}

func newFakeAttemptRepo(users *fakeUserRepo) *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[string]*model.Attempt), users: users}
}

func (f *fakeAttemptRepo) CreateWithActivePointer(attempt *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	clone := *attempt
	f.attempts[attempt.ID] = &clone
	f.createCalls = append(f.createCalls, attempt.ID)

	email := model.NormalizeEmail(attempt.UserEmail)
	user := f.users.users[email]
	if user == nil {
		user = &model.User{Email: email}
		f.users.users[email] = user
	}
	scenarioID := attempt.ScenarioID
	attemptID := attempt.ID
	user.ActiveScenarioID = &scenarioID
	user.ActiveAttemptID = &attemptID
	return nil
}

func (f *fakeAttemptRepo) FindByID(email, id string) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.UserEmail != model.NormalizeEmail(email) {
		return nil, repository.ErrAttemptNotFound
	}
	clone := *attempt
	return &clone, nil
}

func (f *fakeAttemptRepo) FindAllByUser(email string) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Attempt
	for _, attempt := range f.attempts {
		if attempt.UserEmail == model.NormalizeEmail(email) {
			out = append(out, *attempt)
		}
	}
	return out, nil
}

func (f *fakeAttemptRepo) TransitionToGraded(email, id string, fields model.GradedFields) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.UserEmail != model.NormalizeEmail(email) {
		return false, repository.ErrAttemptNotFound
	}
	if attempt.Status != model.AttemptPending {
		return false, nil
	}
	now := time.Now().UTC()
	attempt.Status = model.AttemptGraded
	attempt.GradedAt = &now
	attempt.Score = &fields.Score
	attempt.MaxScore = &fields.MaxScore
	attempt.Feedback = &fields.Feedback
	attempt.RubricScores = fields.RubricScores
	if fields.RevisionExample != "" {
		attempt.RevisionExample = &fields.RevisionExample
	}
	f.clearPointerLocked(attempt)
	return true, nil
}

func (f *fakeAttemptRepo) TransitionToAbandoned(email, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.UserEmail != model.NormalizeEmail(email) {
		return false, repository.ErrAttemptNotFound
	}
	if attempt.Status != model.AttemptPending {
		return false, nil
	}
	attempt.Status = model.AttemptAbandoned
	f.clearPointerLocked(attempt)
	return true, nil
}

func (f *fakeAttemptRepo) clearPointerLocked(attempt *model.Attempt) {
	user := f.users.users[attempt.UserEmail]
	if user != nil && user.ActiveAttemptID != nil && *user.ActiveAttemptID == attempt.ID {
		user.ActiveScenarioID = nil
		user.ActiveAttemptID = nil
	}
}

type fakeProcessedRepo struct {
	mu        sync.Mutex
	processed map[string]time.Time
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{processed: make(map[string]time.Time)}
}

func (f *fakeProcessedRepo) IsProcessed(messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[messageID]
	return ok, nil
}

func (f *fakeProcessedRepo) MarkProcessed(messageID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.processed[messageID]; ok {
		return false, nil
	}
	f.processed[messageID] = now
	return true, nil
}

func (f *fakeProcessedRepo) PurgeOlderThan(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for id, at := range f.processed {
		if at.Before(cutoff) {
			delete(f.processed, id)
			purged++
		}
	}
	return purged, nil
}

type fakeWatchRepo struct {
	mu     sync.Mutex
	status *model.WatchStatus

	claimErr    error
	completeErr error
}

func (f *fakeWatchRepo) Get() (*model.WatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		return nil, nil
	}
	clone := *f.status
	return &clone, nil
}

func (f *fakeWatchRepo) TryClaim(now time.Time, decide func(*model.WatchStatus) bool) (bool, *model.WatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, nil, f.claimErr
	}
	var seen *model.WatchStatus
	if f.status != nil {
		clone := *f.status
		seen = &clone
	}
	if !decide(seen) {
		return false, seen, nil
	}
	if f.status == nil {
		f.status = &model.WatchStatus{ID: 1}
	}
	f.status.Status = model.WatchRenewing
	f.status.ClaimedAt = &now
	return true, seen, nil
}

func (f *fakeWatchRepo) Complete(expiresAt, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.status.Status = model.WatchCompleted
	f.status.ExpiresAt = &expiresAt
	f.status.RenewedAt = &now
	return nil
}

// fakeMailer records every outbound email.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []mail.Outgoing
	replies []string

	sendErr  error
	replyErr error

	history    []*mail.Inbound
	historyErr error
	latest     *mail.Inbound
	latestErr  error

	watchExpiry time.Time
	watchErr    error
	watchCalls  int
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) Reply(_ context.Context, _ *mail.Inbound, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, body)
	return nil
}

func (f *fakeMailer) HistorySince(_ context.Context, _ uint64) ([]*mail.Inbound, error) {
	return f.history, f.historyErr
}

func (f *fakeMailer) Latest(_ context.Context) (*mail.Inbound, error) {
	return f.latest, f.latestErr
}

func (f *fakeMailer) Watch(_ context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	if f.watchErr != nil {
		return time.Time{}, f.watchErr
	}
	return f.watchExpiry, nil
}

// fakeGrader returns canned results.
type fakeGrader struct {
	evaluation *Evaluation
	evalErr    error
	starter    string
	starterErr error

	evalCalls int
}

func (f *fakeGrader) Evaluate(_ context.Context, _ *scenario.Scenario, _ []ThreadMessage, _ ThreadMessage, _ *scenario.Rubric) (*Evaluation, error) {
	f.evalCalls++
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.evaluation, nil
}

func (f *fakeGrader) StarterBody(_ context.Context, _ *scenario.Scenario, _ string) (string, error) {
	return f.starter, f.starterErr
}

// noopWatch satisfies WatchService where renewal is irrelevant to the test.
type noopWatch struct{ calls int }

func (n *noopWatch) EnsureWatch(context.Context) { n.calls++ }

func passingEvaluation() *Evaluation {
	return &Evaluation{
		CounterpartReply: "Thanks, received.",
		Grading: &Grading{
			Scores: []model.RubricScore{
				{Name: "Tone & respect", Score: 4, MaxScore: 5, Justification: "Mostly courteous."},
				{Name: "Clarity & purpose", Score: 5, MaxScore: 5},
			},
			TotalScore:      9,
			MaxTotalScore:   10,
			OverallComment:  "Solid email overall.",
			RevisionExample: "Dear team, ...",
		},
	}
}

func seedPendingAttempt(users *fakeUserRepo, attempts *fakeAttemptRepo, email, scenarioID, attemptID string) {
	attempt := &model.Attempt{
		ID:         attemptID,
		UserEmail:  model.NormalizeEmail(email),
		ScenarioID: scenarioID,
		Status:     model.AttemptPending,
		StartedAt:  time.Now().UTC(),
	}
	if err := attempts.CreateWithActivePointer(attempt); err != nil {
		panic(fmt.Sprintf("seeding attempt: %v", err))
	}
}
