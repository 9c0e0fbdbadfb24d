// Package handler exposes the authentication use cases over HTTP.
package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	identitydomain "perfreview/backend/internal/identity/domain"
	"perfreview/backend/internal/identity/service"
	"perfreview/backend/internal/security"
	"perfreview/backend/internal/server/middleware"
	sessiondomain "perfreview/backend/internal/session/domain"
)

const (
	verifierCookie = "pkce_verifier"
	stateCookie    = "oauth_state"
	flowCookieAge  = 600 // seconds a login attempt may take
	flowCookiePath = "/auth"
)

// AuthFlows is the subset of the orchestrator the handler drives.
type AuthFlows interface {
	Authenticate(ctx context.Context, code, verifier string, meta sessiondomain.DeviceMeta) (*service.AuthResult, error)
	RefreshTokens(ctx context.Context, rawRefresh string) (*service.AuthResult, error)
	LogoutWithProviderToken(ctx context.Context, userID, providerToken string) error
	GetCurrentUser(ctx context.Context, userID string) (*identitydomain.UserView, error)
	ListSessions(ctx context.Context, userID, currentSessionID string) ([]identitydomain.SessionView, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
}

// AuthorizeURLer builds the IdP authorization URL for a state and PKCE verifier.
type AuthorizeURLer interface {
	AuthCodeURL(state, verifier string) string
}

// Handler serves the /auth routes.
type Handler struct {
	auth          AuthFlows
	idp           AuthorizeURLer
	secureCookies bool
}

// NewHandler returns a Handler. secureCookies marks the PKCE cookies Secure; disable it only for plain-HTTP development.
func NewHandler(auth AuthFlows, idp AuthorizeURLer, secureCookies bool) *Handler {
	return &Handler{auth: auth, idp: idp, secureCookies: secureCookies}
}

// Register mounts the routes on r. requireAuth guards the routes that need an access token.
func (h *Handler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	g := r.Group("/auth")
	g.GET("/login", h.Login)
	g.POST("/callback", h.Callback)
	g.POST("/refresh", h.Refresh)

	authed := g.Group("", requireAuth)
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	authed.GET("/sessions", h.ListSessions)
	authed.DELETE("/sessions/:id", h.RevokeSession)
}

type callbackRequest struct {
	Code         string `json:"code" binding:"required"`
	CodeVerifier string `json:"code_verifier"`
	State        string `json:"state"`
	DeviceID     string `json:"device_id" binding:"max=255"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type logoutRequest struct {
	ProviderToken string `json:"provider_token"`
}

type tokenResponse struct {
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	TokenType    string                  `json:"token_type"`
	ExpiresIn    int64                   `json:"expires_in"`
	SessionID    string                  `json:"session_id"`
	User         identitydomain.UserView `json:"user"`
}

// Login starts an authorization-code flow: it returns the IdP URL and keeps the verifier and state in HttpOnly cookies.
func (h *Handler) Login(c *gin.Context) {
	verifier := security.GenerateVerifier()
	state := security.GenerateState()
	h.setFlowCookie(c, verifierCookie, verifier, flowCookieAge)
	h.setFlowCookie(c, stateCookie, state, flowCookieAge)
	c.JSON(http.StatusOK, gin.H{"url": h.idp.AuthCodeURL(state, verifier), "state": state})
}

// Callback completes the flow started by Login. The verifier comes from the body or, failing that, the login cookie.
// When a state cookie is present the body state must match it.
func (h *Handler) Callback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	verifier := req.CodeVerifier
	if verifier == "" {
		verifier, _ = c.Cookie(verifierCookie)
	}
	if expected, err := c.Cookie(stateCookie); err == nil && expected != "" {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(req.State)) != 1 {
			respondError(c, http.StatusUnauthorized, "authentication failed")
			return
		}
	}
	h.setFlowCookie(c, verifierCookie, "", -1)
	h.setFlowCookie(c, stateCookie, "", -1)

	meta := sessiondomain.NewDeviceMeta(req.DeviceID, c.Request.UserAgent(), c.ClientIP())
	res, err := h.auth.Authenticate(c.Request.Context(), req.Code, verifier, meta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

// Refresh rotates a refresh token.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "refresh_token is required")
		return
	}
	res, err := h.auth.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

// Logout ends every session of the caller. A provider_token in the body is revoked at the IdP as well.
func (h *Handler) Logout(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	var req logoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := h.auth.LogoutWithProviderToken(c.Request.Context(), userID, req.ProviderToken); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *Handler) Me(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	user, err := h.auth.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListSessions returns the caller's active sessions, flagging the one the access token belongs to.
func (h *Handler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := middleware.GetUserID(ctx)
	current, _ := middleware.GetSessionID(ctx)
	sessions, err := h.auth.ListSessions(ctx, userID, current)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// RevokeSession ends one of the caller's sessions.
func (h *Handler) RevokeSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	if err := h.auth.RevokeSession(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setFlowCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, flowCookiePath, "", h.secureCookies, true)
}

func toTokenResponse(res *service.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    res.Tokens.ExpiresIn,
		SessionID:    res.SessionID,
		User:         res.User,
	}
}

// writeError maps a use-case error to a status and a client-safe message. Causes are only logged.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		respondError(c, http.StatusNotFound, "session not found")
		return
	}
	switch service.KindOf(err) {
	case service.KindAuthenticationFailed:
		respondError(c, http.StatusUnauthorized, "authentication failed")
	case service.KindInvalidToken:
		respondError(c, http.StatusUnauthorized, "invalid token")
	case service.KindTokenExpired:
		respondError(c, http.StatusUnauthorized, "token expired")
	case service.KindTokenTheftDetected:
		respondError(c, http.StatusUnauthorized, "refresh token reuse detected; all sessions revoked")
	case service.KindUserNotFound:
		respondError(c, http.StatusUnauthorized, "user not found")
	case service.KindUserDeactivated:
		respondError(c, http.StatusForbidden, "user deactivated")
	default:
		log.Printf("identity: %s %s: %v", c.Request.Method, c.FullPath(), err)
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

func respondError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}
