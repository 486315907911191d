// Package http serves the OAuth2 redirect that links a member's Discord
// connections to the bot.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"community-bot/internal/common/i18n"
	"community-bot/internal/common/logger"
)

type Authorizer interface {
	// Authorize exchanges code and returns the Discord user id it belongs to.
	Authorize(ctx context.Context, code string) (string, error)
}

type JoinResumer interface {
	ResumeJoin(ctx context.Context, userID string) (bool, error)
}

type Translator interface {
	Translate(key string, params i18n.Params, locale string) string
}

type OAuthHandler struct {
	accounts Authorizer
	joins    JoinResumer
	tr       Translator
	locale   string
}

func NewOAuthHandler(accounts Authorizer, joins JoinResumer, tr Translator, locale string) *OAuthHandler {
	return &OAuthHandler{accounts: accounts, joins: joins, tr: tr, locale: locale}
}

func (h *OAuthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/oauth2", h.callback)
}

func (h *OAuthHandler) callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		logger.Info().Str("reason", reason).Msg("Authorization declined")
		h.text(c, http.StatusBadRequest, "oauthFailed")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.text(c, http.StatusBadRequest, "oauthFailed")
		return
	}

	ctx := c.Request.Context()
	userID, err := h.accounts.Authorize(ctx, code)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to complete authorization")
		h.text(c, http.StatusBadGateway, "oauthFailed")
		return
	}

	resumed, err := h.joins.ResumeJoin(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to resume pending join")
	}
	logger.Info().Str("user_id", userID).Bool("resumed", resumed).Msg("Account linked")
	h.text(c, http.StatusOK, "oauthSuccess")
}

func (h *OAuthHandler) text(c *gin.Context, status int, key string) {
	c.String(status, h.tr.Translate(key, nil, h.locale))
}
