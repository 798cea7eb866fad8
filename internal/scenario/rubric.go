package scenario

import (
	"encoding/json"
	"fmt"
	"os"
)

// RubricItem is one grading criterion.
type RubricItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxScore    int    `json:"max_score"`
}

type Rubric struct {
	Items []RubricItem `json:"items"`
}

// MaxTotal is the sum of all criterion maxima.
func (r *Rubric) MaxTotal() int {
	total := 0
	for _, item := range r.Items {
		total += item.MaxScore
	}
	return total
}

// LoadRubric reads a rubric JSON file; an empty path yields the built-in
// default rubric.
func LoadRubric(path string) (*Rubric, error) {
	if path == "" {
		return DefaultRubric(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rubric %q: %w", path, err)
	}

	var rubric Rubric
	if err := json.Unmarshal(raw, &rubric); err != nil {
		return nil, fmt.Errorf("parsing rubric %q: %w", path, err)
	}
	if len(rubric.Items) == 0 {
		return nil, fmt.Errorf("rubric %q has no items", path)
	}
	for i := range rubric.Items {
		if rubric.Items[i].MaxScore <= 0 {
			rubric.Items[i].MaxScore = 5
		}
	}
	return &rubric, nil
}

// DefaultRubric is the global rubric shared by all scenarios.
func DefaultRubric() *Rubric {
	return &Rubric{Items: []RubricItem{
		{
			Name: "Tone & respect",
			Description: "Tone is professional, courteous, and culturally appropriate. " +
				"Avoids slang, excessive informality, emotional language, or abruptness. " +
				"Adapts formality to the recipient and context.",
			MaxScore: 5,
		},
		{
			Name: "Clarity & purpose",
			Description: "The email clearly states its purpose early, ideally in the first 1-2 sentences. " +
				"The reader immediately understands why the message was sent. " +
				"Content is concise, focused on relevant details, and avoids unnecessary information.",
			MaxScore: 5,
		},
		{
			Name: "Structure & formatting",
			Description: "Has a clear greeting, organized body paragraphs, and a professional closing or sign-off. " +
				"Uses short paragraphs or bullet points where appropriate to aid readability.",
			MaxScore: 5,
		},
		{
			Name: "Professionalism & responsibility",
			Description: "Takes ownership where appropriate and avoids blame or excessive excuses. " +
				"Demonstrates reliability and commitment. " +
				"Offers solutions or next steps proactively rather than just stating problems.",
			MaxScore: 5,
		},
		{
			Name: "Task fulfillment & actionable next steps",
			Description: "Addresses all parts of the assignment. " +
				"Explicitly states any required actions: what is needed, from whom, and by when. " +
				"Ends with a clear call-to-action or next step so the recipient knows exactly how to respond.",
			MaxScore: 5,
		},
		{
			Name: "Grammar & readability",
			Description: "Language is correct enough not to distract or confuse the reader. " +
				"Sentences are complete and easy to follow. " +
				"Spelling and punctuation do not undermine the writer's credibility.",
			MaxScore: 5,
		},
		{
			Name: "Subject line",
			Description: "Subject line is clear, specific, and professional. " +
				"It accurately reflects the email's content and would help the recipient prioritize the message. " +
				"For reply scenarios where the subject is pre-set, full marks are appropriate " +
				"if the student does not change it to something less appropriate.",
			MaxScore: 5,
		},
	}}
}
