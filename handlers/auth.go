package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/config"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/sessions"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/tokens"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/middleware"
)

// LoginRequest used for password-mode login (dev/testing)
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"` // "password" | "auth_code"
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`         // authorization code
	RedirectURI string `json:"redirect_uri"` // redirect uri used in auth code flow
}

// ClaimsVerifier verifies a Keycloak id_token and returns its claims.
type ClaimsVerifier interface {
	Claims(ctx context.Context, raw string) (map[string]interface{}, error)
}

// AuthHandler holds dependencies
type AuthHandler struct {
	kc          config.KeycloakConfig
	idTokens    ClaimsVerifier
	issuer      *tokens.Issuer
	revocations *sessions.Revocations
	client      *http.Client
}

// NewAuthHandler wires login against Keycloak. With a nil issuer the Keycloak
// access token is handed back as is.
func NewAuthHandler(kc config.KeycloakConfig, idTokens ClaimsVerifier, issuer *tokens.Issuer, rev *sessions.Revocations) *AuthHandler {
	return &AuthHandler{
		kc:          kc,
		idTokens:    idTokens,
		issuer:      issuer,
		revocations: rev,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Register mounts the public login route under /auth
func (h *AuthHandler) Register(r gin.IRouter) {
	r.POST("/auth/login", h.Login)
}

// RegisterProtected mounts routes that need an authenticated caller.
func (h *AuthHandler) RegisterProtected(r gin.IRouter) {
	r.POST("/auth/logout", h.Logout)
	r.GET("/api/v1/me", h.Me)
}

// Login implements a minimal login: password grant (dev/testing) and authorization-code exchange
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	form := url.Values{}
	switch req.Mode {
	case "password":
		form.Set("grant_type", "password")
		form.Set("username", req.Username)
		form.Set("password", req.Password)
		form.Set("scope", "openid")
	case "auth_code":
		if req.Code == "" || req.RedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required for auth_code mode"})
			return
		}
		form.Set("grant_type", "authorization_code")
		form.Set("code", req.Code)
		form.Set("redirect_uri", req.RedirectURI)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if h.kc.URL == "" || h.idTokens == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Keycloak not configured"})
		return
	}

	tr, err := h.exchange(c.Request.Context(), form)
	if err != nil {
		logger.Warnf("token exchange (%s): %v", req.Mode, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	claims, err := h.idTokens.Claims(c.Request.Context(), tr.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token", "details": err.Error()})
		return
	}
	id := tokens.Identity{Role: middleware.RoleFromClaims(claims)}
	id.Sub, _ = claims["sub"].(string)
	id.Name, _ = claims["name"].(string)
	id.Email, _ = claims["email"].(string)
	if id.Sub == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "id token has no subject"})
		return
	}

	access, expiresIn := tr.AccessToken, tr.ExpiresIn
	if h.issuer != nil {
		if access, err = h.issuer.GenerateAccessToken(id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
			return
		}
		expiresIn = int(h.issuer.TTL().Seconds())
	}
	logger.Infof("login ok sub=%s role=%s", id.Sub, id.Role)
	// camelCase to match the frontend LoginResponse shape
	c.JSON(http.StatusOK, gin.H{
		"accessToken": access,
		"expiresIn":   expiresIn,
		"user":        gin.H{"sub": id.Sub, "name": id.Name, "email": id.Email, "role": id.Role},
	})
}

// Logout revokes the presented access token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw := middleware.RawToken(c)
	exp, err := tokenExpiry(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.revocations.Revoke(c.Request.Context(), raw, time.Until(exp)); err != nil {
		logger.Errorf("revoke access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, _ := c.Get(middleware.ClaimsKey)
	c.JSON(http.StatusOK, gin.H{"sub": middleware.Owner(c), "role": middleware.Role(c), "claims": claims})
}

// tokenExpiry reads exp without checking the signature. Only call it on
// tokens the middleware already verified.
func tokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("exp claim not present")
	}
	return exp.Time, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// exchange posts form to the realm token endpoint using client_secret_post,
// retrying once with HTTP Basic client auth on 401.
func (h *AuthHandler) exchange(ctx context.Context, form url.Values) (*tokenResponse, error) {
	tokenURL := h.kc.Issuer() + "/protocol/openid-connect/token"
	form.Set("client_id", h.kc.ClientID)
	if h.kc.ClientSecret != "" {
		form.Set("client_secret", h.kc.ClientSecret)
	}

	resp, err := h.post(ctx, tokenURL, form, false)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && h.kc.ClientSecret != "" {
		_ = resp.Body.Close()
		logger.Warnf("token endpoint returned 401, retrying with HTTP Basic client auth")
		basic := url.Values{}
		for k, v := range form {
			if k != "client_secret" {
				basic[k] = v
			}
		}
		resp, err = h.post(ctx, tokenURL, basic, true)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	if tr.IDToken == "" {
		return nil, errors.New("token endpoint returned no id_token")
	}
	return &tr, nil
}

func (h *AuthHandler) post(ctx context.Context, tokenURL string, form url.Values, basic bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth(h.kc.ClientID, h.kc.ClientSecret)
	}
	return h.client.Do(req)
}
