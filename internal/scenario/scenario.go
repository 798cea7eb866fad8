package scenario

import "strings"

// InteractionType says who writes the first email of a scenario.
type InteractionType string

const (
	// InteractionInitiate: the student writes the first email.
	InteractionInitiate InteractionType = "initiate"
	// InteractionReply: the bot sends a starter email the student replies to.
	InteractionReply InteractionType = "reply"
)

const (
	defaultStarterSenderName = "Jordan Smith (Manager - Bot)"
	defaultStarterSubject    = "Regarding your work today"
	defaultStarterHint       = "Write a realistic starter email for the situation, 1-3 short paragraphs."
)

// Scenario describes one workplace email exercise. Scenarios are authored as
// JSON files, one per file, named <id>.json.
type Scenario struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Environment string `json:"environment"`

	CounterpartRole string `json:"counterpart_role"`

	// What the student is expected to do.
	StudentTask string `json:"student_task"`

	// How the counterpart behaves when replying.
	CounterpartStyle string `json:"counterpart_style"`

	// Scenario-specific grading hints.
	GradingFocus string `json:"grading_focus"`

	// What the counterpart realistically knows (reply prompt only).
	CounterpartContext string `json:"counterpart_context"`

	InteractionType InteractionType `json:"interaction_type"`

	StarterSenderName          string `json:"starter_sender_name"`
	StarterSubject             string `json:"starter_subject"`
	StarterEmailBody           string `json:"starter_email_body"`
	StarterEmailGenerationHint string `json:"starter_email_generation_hint"`
}

func (s *Scenario) applyDefaults() {
	if s.InteractionType == "" {
		s.InteractionType = InteractionInitiate
	}
	if s.StarterSenderName == "" {
		s.StarterSenderName = defaultStarterSenderName
	}
	if s.StarterSubject == "" {
		s.StarterSubject = defaultStarterSubject
	}
	if s.StarterEmailGenerationHint == "" {
		s.StarterEmailGenerationHint = defaultStarterHint
	}
}

const studentNamePlaceholder = "{student_name}"

// Personalize replaces the {student_name} placeholder with the student's
// first name. With no name available the placeholder is removed, so
// "Hi {student_name}," degrades to "Hi ,".
func Personalize(body, firstName string) string {
	if !strings.Contains(body, studentNamePlaceholder) {
		return body
	}
	return strings.ReplaceAll(body, studentNamePlaceholder, firstName)
}
