package dto

import "time"

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type StartScenarioResponse struct {
	Success   bool   `json:"success"`
	AttemptID string `json:"attempt_id,omitempty"`
	Message   string `json:"message"`
}

type RubricScoreDTO struct {
	Name          string `json:"name"`
	Score         int    `json:"score"`
	MaxScore      int    `json:"maxScore"`
	Justification string `json:"justification,omitempty"`
}

type AttemptSummaryDTO struct {
	ID         string     `json:"id"`
	ScenarioID string     `json:"scenario_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	GradedAt   *time.Time `json:"graded_at,omitempty"`
	Score      *int       `json:"score,omitempty"`
	MaxScore   *int       `json:"max_score,omitempty"`
}

type AttemptDetailDTO struct {
	ID              string           `json:"id"`
	ScenarioID      string           `json:"scenario_id"`
	Status          string           `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
	GradedAt        *time.Time       `json:"graded_at,omitempty"`
	Score           *int             `json:"score,omitempty"`
	MaxScore        *int             `json:"max_score,omitempty"`
	Feedback        *string          `json:"feedback,omitempty"`
	RubricScores    []RubricScoreDTO `json:"rubric_scores,omitempty"`
	RevisionExample *string          `json:"revision_example,omitempty"`
}

type ScenarioSummaryDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	StudentTask     string `json:"student_task"`
	InteractionType string `json:"interaction_type"`
}
