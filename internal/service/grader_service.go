package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/scenario"
)

// ThreadMessage is one email in the conversation handed to the grader,
// oldest first.
type ThreadMessage struct {
	Sender  string
	Subject string
	Body    string
}

// Grading is the structured result of evaluating a student email.
type Grading struct {
	Scores          []model.RubricScore
	TotalScore      int
	MaxTotalScore   int
	OverallComment  string
	RevisionExample string
}

// Evaluation couples the grading with the in-character reply the
// counterpart sends back to the student.
type Evaluation struct {
	Grading          *Grading
	CounterpartReply string
}

type GraderService interface {
	// Evaluate grades the student's latest email against the rubric and
	// drafts the counterpart's reply.
	Evaluate(ctx context.Context, scn *scenario.Scenario, prior []ThreadMessage, student ThreadMessage, rubric *scenario.Rubric) (*Evaluation, error)
	// StarterBody generates the opening email for reply-type scenarios that
	// do not ship a canned starter body.
	StarterBody(ctx context.Context, scn *scenario.Scenario, studentName string) (string, error)
}

type geminiGraderService struct {
	client *genai.GenerativeModel
	cfg    *config.Config
}

func NewGraderService(cfg *config.Config) (GraderService, error) {
	if cfg.GeminiApiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set. GraderService will be non-functional.")
		return &geminiGraderService{cfg: cfg, client: nil}, nil
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiApiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	model := client.GenerativeModel("gemini-1.5-flash")
	return &geminiGraderService{client: model, cfg: cfg}, nil
}

func (s *geminiGraderService) Evaluate(ctx context.Context, scn *scenario.Scenario, prior []ThreadMessage, student ThreadMessage, rubric *scenario.Rubric) (*Evaluation, error) {
	if s.client == nil {
		return nil, fmt.Errorf("grader is not configured (missing API key)")
	}

	replyPrompt := buildReplyPrompt(scn, prior, student)
	replyResp, err := s.client.GenerateContent(ctx, genai.Text(replyPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating counterpart reply: %w", err)
	}
	counterpartReply := strings.TrimSpace(responseText(replyResp))
	if counterpartReply == "" {
		return nil, fmt.Errorf("counterpart reply came back empty")
	}

	gradingPrompt := buildGradingPrompt(scn, prior, student, rubric)
	gradingResp, err := s.client.GenerateContent(ctx, genai.Text(gradingPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating grading: %w", err)
	}
	grading, err := parseGrading(responseText(gradingResp))
	if err != nil {
		return nil, fmt.Errorf("parsing grading response: %w", err)
	}

	return &Evaluation{Grading: grading, CounterpartReply: counterpartReply}, nil
}

func (s *geminiGraderService) StarterBody(ctx context.Context, scn *scenario.Scenario, studentName string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("grader is not configured (missing API key)")
	}

	var sb strings.Builder
	sb.WriteString("You are playing a role in an email-writing practice exercise.\n")
	fmt.Fprintf(&sb, "Your role: %s\n", scn.CounterpartRole)
	fmt.Fprintf(&sb, "Your communication style: %s\n", scn.CounterpartStyle)
	fmt.Fprintf(&sb, "Scenario environment: %s\n", scn.Environment)
	if scn.CounterpartContext != "" {
		fmt.Fprintf(&sb, "Context you know: %s\n", scn.CounterpartContext)
	}
	if scn.StarterEmailGenerationHint != "" {
		fmt.Fprintf(&sb, "Guidance for this email: %s\n", scn.StarterEmailGenerationHint)
	}
	fmt.Fprintf(&sb, "\nWrite the opening email of this scenario, addressed to the student %s. ", studentName)
	sb.WriteString("Output only the email body as plain text, no subject line, no commentary.")

	resp, err := s.client.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return "", fmt.Errorf("generating starter email: %w", err)
	}
	body := strings.TrimSpace(responseText(resp))
	if body == "" {
		return "", fmt.Errorf("starter email came back empty")
	}
	return body, nil
}

func buildReplyPrompt(scn *scenario.Scenario, prior []ThreadMessage, student ThreadMessage) string {
	var sb strings.Builder
	sb.WriteString("You are playing a role in an email-writing practice exercise.\n")
	fmt.Fprintf(&sb, "Your role: %s\n", scn.CounterpartRole)
	fmt.Fprintf(&sb, "Your communication style: %s\n", scn.CounterpartStyle)
	fmt.Fprintf(&sb, "Scenario environment: %s\n", scn.Environment)
	if scn.CounterpartContext != "" {
		fmt.Fprintf(&sb, "Context you know: %s\n", scn.CounterpartContext)
	}
	sb.WriteString("\nConversation so far:\n")
	writeThread(&sb, prior, student)
	sb.WriteString("\nWrite your in-character reply to the student's last email. ")
	sb.WriteString("Stay in character and keep it brief. Output only the email body as plain text.")
	return sb.String()
}

func buildGradingPrompt(scn *scenario.Scenario, prior []ThreadMessage, student ThreadMessage, rubric *scenario.Rubric) string {
	var sb strings.Builder
	sb.WriteString("You are a strict but fair writing instructor grading a student's professional email.\n")
	fmt.Fprintf(&sb, "Scenario: %s\n", scn.Description)
	fmt.Fprintf(&sb, "The student's task: %s\n", scn.StudentTask)
	if scn.GradingFocus != "" {
		fmt.Fprintf(&sb, "Pay particular attention to: %s\n", scn.GradingFocus)
	}
	sb.WriteString("\nConversation so far:\n")
	writeThread(&sb, prior, student)

	sb.WriteString("\nGrade the student's LAST email against this rubric:\n")
	for _, item := range rubric.Items {
		fmt.Fprintf(&sb, "- %s (max %d): %s\n", item.Name, item.MaxScore, item.Description)
	}

	sb.WriteString("\nRespond with ONLY a JSON object, no markdown fences, in this exact shape:\n")
	sb.WriteString(`{"scores": [{"name": "<rubric item name>", "score": <int>, "max_score": <int>, "justification": "<one sentence>"}], "overall_comment": "<two or three sentences>", "revision_example": "<a rewritten version of the student's email that would score full marks>"}`)
	sb.WriteString("\nInclude every rubric item exactly once, in order.")
	return sb.String()
}

func writeThread(sb *strings.Builder, prior []ThreadMessage, student ThreadMessage) {
	for _, msg := range prior {
		fmt.Fprintf(sb, "From: %s\nSubject: %s\n%s\n---\n", msg.Sender, msg.Subject, msg.Body)
	}
	fmt.Fprintf(sb, "From: %s (the student)\nSubject: %s\n%s\n", student.Sender, student.Subject, student.Body)
}

// gradingPayload mirrors the JSON contract the grading prompt demands.
type gradingPayload struct {
	Scores []struct {
		Name          string `json:"name"`
		Score         int    `json:"score"`
		MaxScore      int    `json:"max_score"`
		Justification string `json:"justification"`
	} `json:"scores"`
	OverallComment  string `json:"overall_comment"`
	RevisionExample string `json:"revision_example"`
}

// parseGrading decodes the model's JSON output, tolerating the markdown
// code fences Gemini sometimes wraps around it.
func parseGrading(raw string) (*Grading, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload gradingPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("malformed grading JSON: %w", err)
	}
	if len(payload.Scores) == 0 {
		return nil, fmt.Errorf("grading JSON has no scores")
	}

	grading := &Grading{
		OverallComment:  payload.OverallComment,
		RevisionExample: payload.RevisionExample,
	}
	for _, s := range payload.Scores {
		maxScore := s.MaxScore
		if maxScore <= 0 {
			maxScore = 5
		}
		score := s.Score
		if score < 0 {
			score = 0
		}
		if score > maxScore {
			score = maxScore
		}
		grading.Scores = append(grading.Scores, model.RubricScore{
			Name:          s.Name,
			Score:         score,
			MaxScore:      maxScore,
			Justification: s.Justification,
		})
		grading.TotalScore += score
		grading.MaxTotalScore += maxScore
	}
	return grading, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}
