// Package auth signs and checks the bearer tokens the orchestrator attaches to
// relayed job payloads when an agent auth secret is configured.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "mini-rpa-orchestrator"

// SubjectKey is the request context key under which Middleware stores the
// verified token subject.
const SubjectKey = "auth_subject"

// Signer issues short-lived HS256 tokens whose subject is the task name.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns nil when secret is empty, which disables relay auth.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a bearer token for one relay of taskName.
func (s *Signer) Sign(taskName string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   taskName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses token and returns its subject.
func Verify(secret []byte, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

var errMissingBearer = errors.New("missing bearer token")

func bearer(c *app.RequestContext) (string, error) {
	h := string(c.GetHeader("Authorization"))
	if !strings.HasPrefix(h, "Bearer ") {
		return "", errMissingBearer
	}
	return strings.TrimSpace(h[len("Bearer "):]), nil
}

// Middleware rejects requests without a valid bearer token. An empty secret
// disables the check.
func Middleware(secret string) app.HandlerFunc {
	key := []byte(secret)
	return func(ctx context.Context, c *app.RequestContext) {
		if len(key) == 0 {
			c.Next(ctx)
			return
		}
		var subject string
		token, err := bearer(c)
		if err == nil {
			subject, err = Verify(key, token)
		}
		if err != nil {
			hlog.CtxWarnf(ctx, "rejecting %s from %s: %v", c.Request.URI().Path(), c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.H{"error": fmt.Sprintf("unauthorized: %v", err)})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next(ctx)
	}
}
