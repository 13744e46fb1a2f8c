package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sportai.io/internal/ids"
	"sportai.io/internal/obs"
	"sportai.io/internal/session"
)

const issuer = "sportai"

var (
	// ErrInvalidToken indicates the token failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired is returned with the claims of a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims are carried by session tokens. The token ID is the session ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer returns an issuer keyed by secret. An empty secret is replaced by a
// random one, which invalidates every token on restart.
func NewTokenIssuer(secret string, now func() time.Time) *TokenIssuer {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		obs.Logger().Warn("SECRET_KEY is not set; using an ephemeral signing key")
		secret = ids.Token(32)
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), now: now}
}

// Issue signs a token for s. Expiry is login time plus ttl; the session validator
// remains the authority on timeout.
func (t *TokenIssuer) Issue(s session.State, ttl time.Duration) (string, error) {
	if strings.TrimSpace(s.Email) == "" || s.SessionID == "" {
		return "", errors.New("auth: token requires subject and session id")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}
	login := s.LoginTime.UTC()
	claims := Claims{
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.Email,
			IssuedAt:  jwt.NewNumericDate(login),
			ExpiresAt: jwt.NewNumericDate(login.Add(ttl)),
			ID:        s.SessionID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and registered claims of token. A genuine token that is
// only past its expiry yields its claims together with ErrTokenExpired, so callers can
// still tell which session timed out.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	err = jwt.NewValidator(
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Minute),
		jwt.WithTimeFunc(t.now),
	).Validate(claims)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired) && claims.IssuedAt != nil:
		return claims, ErrTokenExpired
	default:
		return nil, ErrInvalidToken
	}
}
