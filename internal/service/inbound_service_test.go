package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/mail"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/scenario"
)

type inboundFixture struct {
	svc       *inboundService
	users     *fakeUserRepo
	attempts  *fakeAttemptRepo
	processed *fakeProcessedRepo
	grader    *fakeGrader
	mailer    *fakeMailer
	dir       string
}

func newInboundFixture(t *testing.T) *inboundFixture {
	t.Helper()
	dir := t.TempDir()
	users := newFakeUserRepo()
	attempts := newFakeAttemptRepo(users)
	processed := newFakeProcessedRepo()
	grader := &fakeGrader{evaluation: passingEvaluation()}
	mailer := &fakeMailer{}

	cfg := newTestConfig(dir)
	cfg.Gmail.BotEmail = "coach@pathwise.example"
	cfg.App.PortalURL = "https://portal.pathwise.example"

	svc := NewInboundService(
		NewMatcherService(users, attempts),
		attempts, processed, grader, mailer,
		scenario.DefaultRubric(), cfg,
	).(*inboundService)

	return &inboundFixture{
		svc: svc, users: users, attempts: attempts,
		processed: processed, grader: grader, mailer: mailer, dir: dir,
	}
}

func pushPayload(t *testing.T, historyID uint64) dto.PubSubPushRequest {
	t.Helper()
	data, err := json.Marshal(dto.GmailNotification{EmailAddress: "coach@pathwise.example", HistoryID: historyID})
	require.NoError(t, err)
	var payload dto.PubSubPushRequest
	payload.Message.Data = data
	payload.Message.MessageID = "pubsub-1"
	return payload
}

func studentEmail(id, sender string) *mail.Inbound {
	return &mail.Inbound{
		ID:       id,
		ThreadID: "thread-" + id,
		From:     "Ana Lopez <" + sender + ">",
		Sender:   sender,
		Subject:  "Re: Where is my order?",
		Body:     "Dear Sam,\n\nI apologize for the delay...",
	}
}

func TestProcessNotificationGradesPendingAttempt(t *testing.T) {
	f := newInboundFixture(t)
	writeScenarioFile(t, f.dir, "angry-client", `{
		"name": "Angry client",
		"interaction_type": "reply",
		"starter_sender_name": "Sam Reed (Client - Bot)",
		"starter_subject": "Where is my order?",
		"starter_email_body": "Hi {student_name}, my order is late."
	}`)
	seedPendingAttempt(f.users, f.attempts, "ana@example.com", "angry-client", "attempt-1")
	f.mailer.history = []*mail.Inbound{studentEmail("msg-1", "ana@example.com")}

	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))

	attempt, err := f.attempts.FindByID("ana@example.com", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptGraded, attempt.Status)
	require.NotNil(t, attempt.Score)
	assert.Equal(t, 9, *attempt.Score)
	require.NotNil(t, attempt.MaxScore)
	assert.Equal(t, 10, *attempt.MaxScore)
	require.NotNil(t, attempt.GradedAt)
	assert.Len(t, attempt.RubricScores, 2)

	// Pointer released so the next scenario can be started.
	user, err := f.users.FindByEmail("ana@example.com")
	require.NoError(t, err)
	assert.Nil(t, user.ActiveAttemptID)

	// Reply carries the in-character response and the grading breakdown.
	require.Len(t, f.mailer.replies, 1)
	reply := f.mailer.replies[0]
	assert.Contains(t, reply, "Thanks, received.")
	assert.Contains(t, reply, "--- FEEDBACK ---")
	assert.Contains(t, reply, "Score: 9/10")
	assert.Contains(t, reply, "Tone & respect: 4/5")
	assert.Contains(t, reply, "How to get 100%")

	done, err := f.processed.IsProcessed("msg-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestProcessNotificationRedirectsStrangers(t *testing.T) {
	f := newInboundFixture(t)
	f.mailer.history = []*mail.Inbound{studentEmail("msg-1", "stranger@example.com")}

	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))

	assert.Equal(t, 0, f.grader.evalCalls)
	require.Len(t, f.mailer.replies, 1)
	assert.Contains(t, f.mailer.replies[0], "https://portal.pathwise.example")

	// Nothing was created or mutated for the unknown sender.
	user, err := f.users.FindByEmail("stranger@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)

	done, err := f.processed.IsProcessed("msg-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestProcessNotificationSkipsDuplicates(t *testing.T) {
	f := newInboundFixture(t)
	writeScenarioFile(t, f.dir, "a", `{"name":"A"}`)
	seedPendingAttempt(f.users, f.attempts, "ana@example.com", "a", "attempt-1")
	f.mailer.history = []*mail.Inbound{studentEmail("msg-1", "ana@example.com")}
	_, err := f.processed.MarkProcessed("msg-1", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))

	assert.Equal(t, 0, f.grader.evalCalls)
	assert.Empty(t, f.mailer.replies)
	attempt, err := f.attempts.FindByID("ana@example.com", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptPending, attempt.Status)
}

func TestProcessNotificationIgnoresSignalForGradedAttempt(t *testing.T) {
	f := newInboundFixture(t)
	writeScenarioFile(t, f.dir, "a", `{"name":"A"}`)
	seedPendingAttempt(f.users, f.attempts, "ana@example.com", "a", "attempt-1")
	feedback := "done"
	claimed, err := f.attempts.TransitionToGraded("ana@example.com", "attempt-1", model.GradedFields{Score: 30, MaxScore: 35, Feedback: feedback})
	require.NoError(t, err)
	require.True(t, claimed)

	// Pointer survived the transition somehow; re-validation must catch it.
	attemptID := "attempt-1"
	f.users.mu.Lock()
	f.users.users["ana@example.com"].ActiveAttemptID = &attemptID
	f.users.mu.Unlock()

	f.mailer.history = []*mail.Inbound{studentEmail("msg-2", "ana@example.com")}
	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))

	// Silent skip: no second grading, no reply, result untouched.
	assert.Equal(t, 0, f.grader.evalCalls)
	assert.Empty(t, f.mailer.replies)
	attempt, err := f.attempts.FindByID("ana@example.com", "attempt-1")
	require.NoError(t, err)
	require.NotNil(t, attempt.Score)
	assert.Equal(t, 30, *attempt.Score)

	done, err := f.processed.IsProcessed("msg-2")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestProcessNotificationRejectsSignalForAbandonedAttempt(t *testing.T) {
	f := newInboundFixture(t)
	writeScenarioFile(t, f.dir, "a", `{"name":"A"}`)
	seedPendingAttempt(f.users, f.attempts, "ana@example.com", "a", "attempt-1")
	claimed, err := f.attempts.TransitionToAbandoned("ana@example.com", "attempt-1")
	require.NoError(t, err)
	require.True(t, claimed)

	attemptID := "attempt-1"
	f.users.mu.Lock()
	f.users.users["ana@example.com"].ActiveAttemptID = &attemptID
	f.users.mu.Unlock()

	// A late grading signal for an abandoned attempt is a routing
	// inconsistency: logged and dropped, never graded, never a hard failure.
	f.mailer.history = []*mail.Inbound{studentEmail("msg-3", "ana@example.com")}
	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))

	assert.Equal(t, 0, f.grader.evalCalls)
	attempt, err := f.attempts.FindByID("ana@example.com", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptAbandoned, attempt.Status)
	assert.Nil(t, attempt.Score)
}

func TestProcessNotificationOracleFailureLeavesAttemptPending(t *testing.T) {
	f := newInboundFixture(t)
	writeScenarioFile(t, f.dir, "a", `{"name":"A"}`)
	seedPendingAttempt(f.users, f.attempts, "ana@example.com", "a", "attempt-1")
	f.grader.evalErr = errors.New("model overloaded")
	f.mailer.history = []*mail.Inbound{studentEmail("msg-1", "ana@example.com")}

	err := f.svc.ProcessNotification(context.Background(), pushPayload(t, 42))
	require.Error(t, err)

	// Pending and unmarked: redelivery retries the whole message.
	attempt, findErr := f.attempts.FindByID("ana@example.com", "attempt-1")
	require.NoError(t, findErr)
	assert.Equal(t, model.AttemptPending, attempt.Status)
	assert.Nil(t, attempt.Score)

	done, findErr := f.processed.IsProcessed("msg-1")
	require.NoError(t, findErr)
	assert.False(t, done)
	assert.Empty(t, f.mailer.replies)
}

func TestProcessNotificationSkipsOwnAndNoReplyMail(t *testing.T) {
	f := newInboundFixture(t)
	f.mailer.history = []*mail.Inbound{
		studentEmail("msg-1", "coach@pathwise.example"),
		studentEmail("msg-2", "noreply@accounts.example"),
		studentEmail("msg-3", "no-reply@calendar.example"),
	}

	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))
	assert.Equal(t, 0, f.grader.evalCalls)
	assert.Empty(t, f.mailer.replies)
}

func TestProcessNotificationHistoryFallsBackToLatest(t *testing.T) {
	f := newInboundFixture(t)
	writeScenarioFile(t, f.dir, "a", `{"name":"A"}`)
	seedPendingAttempt(f.users, f.attempts, "ana@example.com", "a", "attempt-1")
	f.mailer.history = nil
	f.mailer.latest = studentEmail("msg-9", "ana@example.com")

	require.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 42)))

	attempt, err := f.attempts.FindByID("ana@example.com", "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptGraded, attempt.Status)
}

func TestProcessNotificationHistoryErrorIsRetriable(t *testing.T) {
	f := newInboundFixture(t)
	f.mailer.historyErr = errors.New("history expired upstream")

	err := f.svc.ProcessNotification(context.Background(), pushPayload(t, 42))
	assert.Error(t, err)
}

func TestProcessNotificationDropsGarbagePayloads(t *testing.T) {
	f := newInboundFixture(t)

	var payload dto.PubSubPushRequest
	payload.Message.Data = []byte("not json at all")
	assert.NoError(t, f.svc.ProcessNotification(context.Background(), payload))

	// A notification without a history cursor is also consumed, not retried.
	assert.NoError(t, f.svc.ProcessNotification(context.Background(), pushPayload(t, 0)))
}

func TestBuildReplyBodyWithoutRevisionExample(t *testing.T) {
	evaluation := passingEvaluation()
	evaluation.Grading.RevisionExample = ""

	body := buildReplyBody(evaluation)
	assert.Contains(t, body, "--- FEEDBACK ---")
	assert.NotContains(t, body, "EXAMPLE")
}
