package model

import "time"

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptGraded    AttemptStatus = "graded"
	AttemptAbandoned AttemptStatus = "abandoned"
)

// Terminal reports whether no further transition is legal out of the status.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptGraded || s == AttemptAbandoned
}

// RubricScore is one criterion of the grading breakdown. Stored as an opaque
// JSON value on the attempt: it is written exactly once at grading time and
// never queried on.
type RubricScore struct {
	Name          string `json:"name"`
	Score         int    `json:"score"`
	MaxScore      int    `json:"maxScore"`
	Justification string `json:"justification,omitempty"`
}

// Attempt is one practice session. Result fields are set by the grading path
// only; once the status is terminal the row is never mutated again.
type Attempt struct {
	ID              string        `gorm:"primarykey" json:"id"`
	UserEmail       string        `gorm:"not null;index" json:"user_email"`
	ScenarioID      string        `gorm:"not null" json:"scenario_id"`
	Status          AttemptStatus `gorm:"not null;default:'pending';index" json:"status"`
	StartedAt       time.Time     `gorm:"not null" json:"started_at"`
	GradedAt        *time.Time    `json:"graded_at,omitempty"`
	Score           *int          `json:"score,omitempty"`
	MaxScore        *int          `json:"max_score,omitempty"`
	Feedback        *string       `gorm:"type:text" json:"feedback,omitempty"`
	RubricScores    []RubricScore `gorm:"serializer:json" json:"rubric_scores,omitempty"`
	RevisionExample *string       `gorm:"type:text" json:"revision_example,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// GradedFields carries the grading result into the pending→graded transition.
type GradedFields struct {
	Score           int
	MaxScore        int
	Feedback        string
	RubricScores    []RubricScore
	RevisionExample string
}
