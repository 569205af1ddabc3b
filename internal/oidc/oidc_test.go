package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const issuer = "http://keycloak.test/realms/jurifix"

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestStaticVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewStaticVerifier(issuer, "jurifix-web", &key.PublicKey)

	good := sign(t, key, jwt.MapClaims{
		"iss":          issuer,
		"aud":          "jurifix-web",
		"sub":          "kc-user-1",
		"exp":          time.Now().Add(time.Minute).Unix(),
		"realm_access": map[string]interface{}{"roles": []string{"senior"}},
	})
	claims, err := v.Claims(context.Background(), good)
	require.NoError(t, err)
	require.Equal(t, "kc-user-1", claims["sub"])
	require.Contains(t, claims, "realm_access")

	wrongAud := sign(t, key, jwt.MapClaims{"iss": issuer, "aud": "other", "sub": "x", "exp": time.Now().Add(time.Minute).Unix()})
	_, err = v.Verify(context.Background(), wrongAud)
	require.Error(t, err)

	// no client id: any audience
	_, err = NewStaticVerifier(issuer, "", &key.PublicKey).Verify(context.Background(), wrongAud)
	require.NoError(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := sign(t, other, jwt.MapClaims{"iss": issuer, "aud": "jurifix-web", "sub": "x", "exp": time.Now().Add(time.Minute).Unix()})
	_, err = v.Verify(context.Background(), forged)
	require.Error(t, err)

	expired := sign(t, key, jwt.MapClaims{"iss": issuer, "aud": "jurifix-web", "sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})
	_, err = v.Verify(context.Background(), expired)
	require.Error(t, err)
}
