package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/domain"
)

// Authentication methods reported on a Principal.
const (
	MethodAPIToken = "api_token"
	MethodJWT      = "jwt"
)

const (
	tokenAudience = "opsforge"
	tokenIssuer   = "opsforge-core"
)

// Principal is an authenticated API caller.
type Principal struct {
	Subject string `json:"subject"`
	Method  string `json:"method"`
}

// TokenClaims is the payload of an OpsForge bearer token.
type TokenClaims struct {
	Subject  string `json:"sub"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	JTI      string `json:"jti"`
	Audience string `json:"aud"`
	Issuer   string `json:"iss"`
}

// AuthService verifies API credentials: the static API token against its
// bcrypt hash, and HS256 bearer tokens signed with the JWT secret.
type AuthService struct {
	tokenHash []byte
	secret    []byte
	now       func() time.Time
}

// NewAuthService creates an AuthService from the auth config section.
func NewAuthService(cfg config.Auth) *AuthService {
	return &AuthService{
		tokenHash: []byte(cfg.TokenHash),
		secret:    []byte(cfg.JWTSecret),
		now:       time.Now,
	}
}

// Authenticate resolves a presented credential to a Principal. Errors wrap
// domain.ErrUnauthorized.
func (s *AuthService) Authenticate(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: credential required", domain.ErrUnauthorized)
	}

	if len(s.secret) > 0 && strings.Count(token, ".") == 2 {
		claims, err := s.verifyJWT(token)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
		return Principal{Subject: claims.Subject, Method: MethodJWT}, nil
	}

	if len(s.tokenHash) > 0 && bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) == nil {
		return Principal{Subject: "api-token", Method: MethodAPIToken}, nil
	}
	return Principal{}, fmt.Errorf("%w: invalid credential", domain.ErrUnauthorized)
}

// IssueToken signs a bearer token for subject valid for ttl.
func (s *AuthService) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	if subject == "" || ttl <= 0 {
		return "", fmt.Errorf("%w: subject and positive ttl required", domain.ErrValidation)
	}
	now := s.now()
	claims := TokenClaims{
		Subject:  subject,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(ttl).Unix(),
		JTI:      randomHex(16),
		Audience: tokenAudience,
		Issuer:   tokenIssuer,
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	signingInput := jwtHeader + "." + base64URLEncode(payload)
	return signingInput + "." + s.sign(signingInput), nil
}

// HashToken returns the bcrypt hash stored as auth.token_hash.
func HashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", fmt.Errorf("%w: token must be at least 16 characters", domain.ErrValidation)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(h), nil
}

// --- JWT (HS256) ---

var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) sign(signingInput string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	return base64URLEncode(mac.Sum(nil))
}

func (s *AuthService) verifyJWT(tokenStr string) (*TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}
	if parts[0] != jwtHeader {
		return nil, errors.New("unsupported token header")
	}
	if !hmac.Equal([]byte(parts[2]), []byte(s.sign(parts[0]+"."+parts[1]))) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	if s.now().Unix() > claims.Expiry {
		return nil, errors.New("token expired")
	}
	if claims.Audience != tokenAudience || claims.Issuer != tokenIssuer {
		return nil, errors.New("token not issued for opsforge")
	}
	return &claims, nil
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
