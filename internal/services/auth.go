package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/tourforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type JWTClaims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// AuthService verifies bearer tokens issued for this backend. Tokens are
// HS256 with the user id as subject.
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueAccessToken(userID uuid.UUID, sessionID uuid.UUID) (string, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey []byte
	accessTTL    time.Duration
}

func NewAuthService(log *logger.Logger, jwtSecretKey string, accessTTL time.Duration) AuthService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: []byte(jwtSecretKey),
		accessTTL:    accessTTL,
	}
}

func (as *authService) GetAccessTTL() time.Duration { return as.accessTTL }

func (as *authService) IssueAccessToken(userID uuid.UUID, sessionID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("user id required")
	}
	if len(as.jwtSecretKey) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
		},
	}
	if sessionID != uuid.Nil {
		claims.SessionID = sessionID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.jwtSecretKey)
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if len(as.jwtSecretKey) == 0 {
		return ctx, fmt.Errorf("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return as.jwtSecretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, fmt.Errorf("token expired")
		}
		return ctx, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return ctx, fmt.Errorf("invalid token claims")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("invalid subject: %w", err)
	}
	sessionID, _ := uuid.Parse(claims.SessionID)
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID, SessionID: sessionID}), nil
}
