package controller

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/idtoken"

	"github.com/pathwise/epistle/config"
	"github.com/pathwise/epistle/internal/dto"
	"github.com/pathwise/epistle/internal/model"
	"github.com/pathwise/epistle/internal/service"
)

const authEmailKey = "authEmail"

// TokenVerifier checks a bearer ID token and returns the verified email.
type TokenVerifier interface {
	VerifyEmail(ctx context.Context, token string) (string, error)
}

type googleVerifier struct {
	audience string
}

func NewTokenVerifier(cfg *config.Config) TokenVerifier {
	return &googleVerifier{audience: cfg.Auth.Audience}
}

func (v *googleVerifier) VerifyEmail(ctx context.Context, token string) (string, error) {
	payload, err := idtoken.Validate(ctx, token, v.audience)
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrNotAuthenticated, err)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return "", fmt.Errorf("%w: ID token carries no email claim", service.ErrNotAuthenticated)
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return "", fmt.Errorf("%w: email claim is not verified", service.ErrNotAuthenticated)
	}
	return model.NormalizeEmail(email), nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified email on the context.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Missing bearer token"})
			return
		}
		email, err := verifier.VerifyEmail(ctx.Request.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("Token verification failed")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Invalid token"})
			return
		}
		ctx.Set(authEmailKey, email)
		ctx.Next()
	}
}

// AuthedEmail returns the verified email RequireAuth stored on the context.
func AuthedEmail(ctx *gin.Context) string {
	return ctx.GetString(authEmailKey)
}
