package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/config"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/sessions"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/tokens"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/middleware"
)

// fakeIDTokens accepts "good-id-token" only.
type fakeIDTokens struct{}

func (fakeIDTokens) Claims(_ context.Context, raw string) (map[string]interface{}, error) {
	if raw != "good-id-token" {
		return nil, errors.New("bad signature")
	}
	return map[string]interface{}{
		"sub":          "test-sub",
		"email":        "a@b.c",
		"name":         "Alice",
		"realm_access": map[string]interface{}{"roles": []interface{}{"senior"}},
	}, nil
}

// fakeKeycloak serves the realm token endpoint.
func fakeKeycloak(t *testing.T, basicOnly bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realms/jurifix/protocol/openid-connect/token" {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseForm())
		if basicOnly {
			if _, _, ok := r.BasicAuth(); !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		switch r.PostForm.Get("grant_type") {
		case "password":
			if r.PostForm.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "authorization_code":
			if r.PostForm.Get("code") != "abc" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"kc-access","id_token":"good-id-token","expires_in":300}`))
	}))
}

type authEnv struct {
	g      *gin.Engine
	issuer *tokens.Issuer
	redis  *mr.Miniredis
}

func newAuthEnv(t *testing.T, kcURL string, withIssuer bool) *authEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	rev := sessions.NewRevocations(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	issuer := tokens.NewIssuer("testsecret", 15*time.Minute)
	kc := config.KeycloakConfig{URL: kcURL, Realm: "jurifix", ClientID: "jurifix-api", ClientSecret: "s3cr3t"}
	var signer *tokens.Issuer
	if withIssuer {
		signer = issuer
	}
	h := NewAuthHandler(kc, fakeIDTokens{}, signer, rev)

	g := gin.New()
	h.Register(g)
	h.RegisterProtected(g.Group("/", middleware.AuthMiddleware(issuer, rev)))
	return &authEnv{g: g, issuer: issuer, redis: m}
}

func (e *authEnv) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.g.ServeHTTP(w, req)
	return w
}

func TestLoginPasswordIssuesAccessToken(t *testing.T) {
	kc := fakeKeycloak(t, false)
	defer kc.Close()
	e := newAuthEnv(t, kc.URL, true)

	w := e.do(http.MethodPost, "/auth/login", "", `{"mode":"password","username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string                 `json:"accessToken"`
		ExpiresIn   int                    `json:"expiresIn"`
		User        map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, "test-sub", resp.User["sub"])
	assert.Equal(t, "senior", resp.User["role"])

	tok, err := e.issuer.Verify(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	assert.Equal(t, "senior", claims["role"])
}

func TestLoginAuthCodeWithBasicFallback(t *testing.T) {
	kc := fakeKeycloak(t, true)
	defer kc.Close()
	e := newAuthEnv(t, kc.URL, false)

	w := e.do(http.MethodPost, "/auth/login", "", `{"mode":"auth_code","code":"abc","redirect_uri":"http://localhost/cb"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"accessToken":"kc-access"`)
	assert.Contains(t, w.Body.String(), `"expiresIn":300`)
}

func TestLoginFailures(t *testing.T) {
	kc := fakeKeycloak(t, false)
	defer kc.Close()
	e := newAuthEnv(t, kc.URL, true)

	w := e.do(http.MethodPost, "/auth/login", "", `{"mode":"password","username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/auth/login", "", `{"mode":"auth_code"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/auth/login", "", `{"mode":"magic"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/auth/login", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unconfigured := newAuthEnv(t, "", true)
	w = unconfigured.do(http.MethodPost, "/auth/login", "", `{"mode":"password"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newAuthEnv(t, "", true)
	access, err := e.issuer.GenerateAccessToken(tokens.Identity{Sub: "u1", Role: "expert"})
	require.NoError(t, err)

	w := e.do(http.MethodGet, "/api/v1/me", access, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"expert"`)
	assert.Contains(t, w.Body.String(), `"sub":"u1"`)

	w = e.do(http.MethodPost, "/auth/logout", access, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, e.redis.Keys(), 1)
	ttl := e.redis.TTL(e.redis.Keys()[0])
	assert.True(t, ttl > 0 && ttl <= 15*time.Minute, "ttl %v", ttl)

	w = e.do(http.MethodGet, "/api/v1/me", access, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenExpiry(t *testing.T) {
	issuer := tokens.NewIssuer("k", time.Hour)
	raw, err := issuer.GenerateAccessToken(tokens.Identity{Sub: "u"})
	require.NoError(t, err)
	exp, err := tokenExpiry(raw)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	_, err = tokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
