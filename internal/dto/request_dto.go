package dto

type StartScenarioRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type FeedbackRequest struct {
	Message       string `json:"message" binding:"required"`
	Stars         int    `json:"stars" binding:"omitempty,min=1,max=5"`
	Page          string `json:"page"`
	Email         string `json:"email" binding:"omitempty,email"`
	ConsoleErrors string `json:"console_errors"`
}
