package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/ganaxdar/autorifa/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong email or password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrNotAdmin is returned when a valid token lacks the admin role.
var ErrNotAdmin = errors.New("admin role required")

// AdminStore is the persistence surface for back-office users.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*model.AdminUser, error)
	Create(ctx context.Context, email, passwordHash, role string) (*model.AdminUser, error)
}

// AuthService issues and verifies admin session tokens.
type AuthService struct {
	admins AdminStore
	secret []byte
	ttl    time.Duration
	log    *zap.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(admins AdminStore, secret string, ttl time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{admins: admins, secret: []byte(secret), ttl: ttl, log: log}
}

// Bootstrap ensures the configured admin account exists. Safe to run on
// every startup.
func (s *AuthService) Bootstrap(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return fmt.Errorf("bootstrap admin: email and password are required")
	}
	_, err := s.admins.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	if _, err := s.admins.Create(ctx, email, string(hash), "admin"); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.log.Info("bootstrap admin created", zap.String("email", email))
	return nil
}

// Login verifies credentials and returns a signed bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("look up admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAdmin parses the token and requires a live admin-role claim.
func (s *AuthService) VerifyAdmin(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidCredentials
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return ErrNotAdmin
	}
	return nil
}
