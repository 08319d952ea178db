package util

import (
	"bonustrack-server/src/db"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
)

// Webhook verification follows https://plaid.com/docs/api/webhooks/webhook-verification/

const (
	webhookMaxAge = 5 * time.Minute
	webhookKeyTTL = 24 * time.Hour
)

type KeyFetcher func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error)

// WebhookVerifier checks the Plaid-Verification JWT against the request body.
// Verification keys are cached per kid.
type WebhookVerifier struct {
	fetch KeyFetcher
	cache *db.Cache
	now   func() time.Time
}

func NewWebhookVerifier(fetch KeyFetcher, cache *db.Cache) *WebhookVerifier {
	return &WebhookVerifier{fetch: fetch, cache: cache, now: time.Now}
}

func jwkToECDSAPublicKey(jwk *plaid.JWKPublicKey) (*ecdsa.PublicKey, error) {
	if jwk == nil || jwk.X == "" || jwk.Y == "" ||
		jwk.Kty != "EC" ||
		jwk.Crv != "P-256" {
		return nil, errors.New("invalid/unsupported JWK")
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func (v *WebhookVerifier) Verify(ctx context.Context, body []byte, tokenString string) error {
	if tokenString == "" {
		return errors.New("missing Plaid-Verification header")
	}

	parser := jwt.NewParser(jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(v.now))

	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("parse unverified token: %w", err)
	}
	if unverified.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return fmt.Errorf("unexpected alg %q (want ES256)", unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return errors.New("missing kid in JWT header")
	}

	jwk, cached, err := v.key(ctx, kid)
	if err != nil {
		return fmt.Errorf("get JWK: %w", err)
	}
	claims, err := verifySignature(parser, tokenString, jwk)
	if err != nil && cached {
		// The key may have been rotated under the same kid.
		v.cache.Evict(db.KindWebhookKey, kid)
		if jwk, _, err = v.key(ctx, kid); err != nil {
			return fmt.Errorf("get JWK: %w", err)
		}
		claims, err = verifySignature(parser, tokenString, jwk)
	}
	if err != nil {
		return err
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return errors.New("missing iat")
	}
	if v.now().Sub(iat.Time) > webhookMaxAge {
		return errors.New("token too old (>5m)")
	}

	wantHash, ok := claims["request_body_sha256"].(string)
	if !ok || wantHash == "" {
		return errors.New("missing request_body_sha256")
	}
	sum := sha256.Sum256(body)
	gotHex := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(gotHex), []byte(strings.ToLower(wantHash))) != 1 {
		return errors.New("body hash mismatch")
	}
	return nil
}

func verifySignature(parser *jwt.Parser, tokenString string, jwk *plaid.JWKPublicKey) (jwt.MapClaims, error) {
	pubKey, err := jwkToECDSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("jwk->ecdsa: %w", err)
	}

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pubKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// key reports whether the JWK came from the cache.
func (v *WebhookVerifier) key(ctx context.Context, kid string) (*plaid.JWKPublicKey, bool, error) {
	if v.cache != nil {
		if cached, ok := v.cache.Value(db.KindWebhookKey, kid); ok {
			if key, ok := cached.(*plaid.JWKPublicKey); ok {
				return key, true, nil
			}
		}
	}
	key, err := v.fetch(ctx, kid)
	if err != nil {
		return nil, false, err
	}
	if v.cache != nil && key.Kid == kid {
		v.cache.Store(db.KindWebhookKey, kid, key, webhookKeyTTL)
	}
	return key, false, nil
}
