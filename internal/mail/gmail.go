package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/pathwise/epistle/config"
)

// GmailMailer talks to the bot mailbox with the Gmail API, authenticated
// through the bot account's OAuth refresh token.
type GmailMailer struct {
	svc      *gmail.Service
	botEmail string
	topic    string
	watchTTL time.Duration
}

func NewGmailMailer(cfg *config.Config) (Mailer, error) {
	ctx := context.Background()
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailModifyScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.Gmail.RefreshToken})

	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail service: %w", err)
	}

	return &GmailMailer{
		svc:      svc,
		botEmail: cfg.Gmail.BotEmail,
		topic:    cfg.Gmail.PubSubTopic,
		watchTTL: cfg.Watch.Duration,
	}, nil
}

func (g *GmailMailer) Send(ctx context.Context, msg Outgoing) error {
	raw, err := BuildRaw(msg.FromName, g.botEmail, msg.To, msg.Subject, msg.Body, msg.HTML, "")
	if err != nil {
		return fmt.Errorf("building message: %w", err)
	}
	sent, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sending message to %s: %w", msg.To, err)
	}
	log.Info().Str("to", msg.To).Str("messageId", sent.Id).Msg("Email sent")
	return nil
}

func (g *GmailMailer) Reply(ctx context.Context, original *Inbound, body string) error {
	raw, err := BuildRaw(
		"Pathwise Email Coach", g.botEmail,
		original.From,
		ReplySubject(original.Subject),
		body, "",
		original.MessageIDHeader,
	)
	if err != nil {
		return fmt.Errorf("building reply: %w", err)
	}
	sent, err := g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw:      raw,
		ThreadId: original.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sending reply in thread %s: %w", original.ThreadID, err)
	}
	log.Info().Str("threadId", original.ThreadID).Str("messageId", sent.Id).Msg("Reply sent")
	return nil
}

func (g *GmailMailer) HistorySince(ctx context.Context, historyID uint64) ([]*Inbound, error) {
	resp, err := g.svc.Users.History.List("me").StartHistoryId(historyID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing history from %d: %w", historyID, err)
	}

	var inbound []*Inbound
	for _, change := range resp.History {
		for _, added := range change.MessagesAdded {
			if added.Message == nil || added.Message.Id == "" {
				continue
			}
			msg, err := g.svc.Users.Messages.Get("me", added.Message.Id).Format("full").Context(ctx).Do()
			if err != nil {
				log.Error().Err(err).Str("messageId", added.Message.Id).Msg("Failed to fetch message from history")
				continue
			}
			inbound = append(inbound, FromMessage(msg))
		}
	}
	return inbound, nil
}

func (g *GmailMailer) Latest(ctx context.Context) (*Inbound, error) {
	resp, err := g.svc.Users.Messages.List("me").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing latest message: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg, err := g.svc.Users.Messages.Get("me", resp.Messages[0].Id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching latest message: %w", err)
	}
	return FromMessage(msg), nil
}

func (g *GmailMailer) Watch(ctx context.Context) (time.Time, error) {
	resp, err := g.svc.Users.Watch("me", &gmail.WatchRequest{
		LabelIds:  []string{"INBOX"},
		TopicName: g.topic,
	}).Context(ctx).Do()
	if err != nil {
		return time.Time{}, fmt.Errorf("registering watch on %s: %w", g.topic, err)
	}
	// The API reports expiration in epoch milliseconds; fall back to the
	// documented TTL if it is missing.
	if resp.Expiration > 0 {
		return time.UnixMilli(resp.Expiration).UTC(), nil
	}
	return time.Now().UTC().Add(g.watchTTL), nil
}
