package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meschain/marketsync/internal/infrastructure/auth"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"github.com/meschain/marketsync/internal/interfaces/http/dto"
	"github.com/meschain/marketsync/internal/interfaces/http/middleware"
)

// AuthHandler lets an operator revoke the token it authenticated with.
// Tokens are issued out of band by `server -issue-token`.
type AuthHandler struct {
	BaseHandler
	revocations auth.RevocationList
	now         func() time.Time
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(revocations auth.RevocationList) *AuthHandler {
	return &AuthHandler{revocations: revocations, now: time.Now}
}

// RevokeResponse confirms a revocation
type RevokeResponse struct {
	ID        string    `json:"jti"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Revoke godoc
//
//	@ID				revokeToken
//	@Summary		Revoke the current token
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	APIResponse[RevokeResponse]
//	@Failure		401	{object}	ErrorResponse
//	@Router			/auth/revoke [post]
func (h *AuthHandler) Revoke(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil || claims.ID == "" {
		h.Error(c, dto.ErrCodeUnauthorized, "Authentication required")
		return
	}
	now := h.now()
	if err := h.revocations.Revoke(c.Request.Context(), claims.ID, claims.RemainingTTL(now)); err != nil {
		h.HandleError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("Token revoked",
		zap.String("jti", claims.ID),
		zap.String("subject", claims.Subject),
	)
	h.Success(c, RevokeResponse{ID: claims.ID, RevokedAt: now})
}
