package util

import (
	"bonustrack-server/src/db"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signer struct {
	key *ecdsa.PrivateKey
	jwk *plaid.JWKPublicKey
}

func newSigner(t *testing.T, kid string) *signer {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &signer{
		key: key,
		jwk: &plaid.JWKPublicKey{
			Kid: kid,
			Kty: "EC",
			Crv: "P-256",
			Alg: "ES256",
			X:   base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, 32))),
			Y:   base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, 32))),
		},
	}
}

func (s *signer) sign(t *testing.T, body []byte, iat time.Time) string {
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iat":                 iat.Unix(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	})
	token.Header["kid"] = s.jwk.Kid
	signed, err := token.SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func TestWebhookVerifier(t *testing.T) {
	cache, err := db.NewCache()
	require.NoError(t, err)
	defer cache.Close()

	s := newSigner(t, "kid-1")
	fetches := 0
	verifier := NewWebhookVerifier(func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
		fetches++
		assert.Equal(t, "kid-1", kid)
		return s.jwk, nil
	}, cache)

	body := []byte(`{"webhook_type":"TRANSACTIONS","item_id":"item-1"}`)
	ctx := context.Background()

	require.NoError(t, verifier.Verify(ctx, body, s.sign(t, body, time.Now())))
	require.NoError(t, verifier.Verify(ctx, body, s.sign(t, body, time.Now())))
	assert.Equal(t, 1, fetches, "key should be served from cache")

	assert.Error(t, verifier.Verify(ctx, []byte(`{"tampered":true}`), s.sign(t, body, time.Now())))
	assert.Error(t, verifier.Verify(ctx, body, s.sign(t, body, time.Now().Add(-10*time.Minute))))
	assert.Error(t, verifier.Verify(ctx, body, ""))

	other := newSigner(t, "kid-1")
	assert.Error(t, verifier.Verify(ctx, body, other.sign(t, body, time.Now())), "signature from a different key")
}

func TestWebhookVerifierRefetchesRotatedKey(t *testing.T) {
	cache, err := db.NewCache()
	require.NoError(t, err)
	defer cache.Close()

	old := newSigner(t, "kid-1")
	rotated := newSigner(t, "kid-1")
	current := old
	fetches := 0
	verifier := NewWebhookVerifier(func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
		fetches++
		return current.jwk, nil
	}, cache)

	body := []byte(`{"webhook_type":"TRANSACTIONS"}`)
	ctx := context.Background()
	require.NoError(t, verifier.Verify(ctx, body, old.sign(t, body, time.Now())))

	current = rotated
	require.NoError(t, verifier.Verify(ctx, body, rotated.sign(t, body, time.Now())))
	assert.Equal(t, 2, fetches)

	require.NoError(t, verifier.Verify(ctx, body, rotated.sign(t, body, time.Now())))
	assert.Equal(t, 2, fetches, "rotated key should now be cached")
}
