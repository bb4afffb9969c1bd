package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const UserIDKey = contextKey("userID")
const UserStaffKey = contextKey("userStaff")
const RequestIDKey = contextKey("requestID")
const ClientIPKey = contextKey("clientIP")

var (
	tokenMu     sync.RWMutex
	tokenSecret []byte
	tokenIssuer string
)

// ConfigureTokens sets the signing secret (and optional issuer) for token keys.
func ConfigureTokens(secret, issuer string) {
	tokenMu.Lock()
	defer tokenMu.Unlock()
	tokenSecret = []byte(secret)
	tokenIssuer = issuer
}

func signingKey() ([]byte, string, error) {
	tokenMu.RLock()
	defer tokenMu.RUnlock()
	if len(tokenSecret) == 0 {
		return nil, "", errors.New("JWT_SECRET is not set")
	}
	return tokenSecret, tokenIssuer, nil
}

// TokenClaims are carried by every token key. Keys never expire; they stay valid as long as
// the auth_tokens row exists.
type TokenClaims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

// IssueTokenKey signs a new opaque key for userID.
func IssueTokenKey(userID uint) (string, error) {
	secret, issuer, err := signingKey()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  strconv.FormatUint(uint64(userID), 10),
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseTokenKey checks the signature of key and returns its claims. A valid signature alone
// does not authenticate: the key must also be stored.
func ParseTokenKey(key string) (*TokenClaims, error) {
	secret, issuer, err := signingKey()
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(key, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == 0 || claims.ID == "" {
		return nil, errors.New("invalid token payload")
	}
	return claims, nil
}

// ExtractTokenKey reads the key from "Authorization: Bearer <key>" or "Authorization: Token <key>".
func ExtractTokenKey(r *http.Request) (string, error) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, key, ok := strings.Cut(authz, " ")
	if !ok {
		return "", errors.New("missing or invalid Authorization header")
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
	default:
		return "", fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("missing token")
	}
	return key, nil
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, userID uint, isStaff bool) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserStaffKey, isStaff)
}

// Get userID from context
func GetUserID(r *http.Request) (uint, bool) {
	v := r.Context().Value(UserIDKey)
	id, ok := v.(uint)
	return id, ok
}

func IsStaff(r *http.Request) bool {
	v, _ := r.Context().Value(UserStaffKey).(bool)
	return v
}
