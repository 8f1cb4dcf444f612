package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

type Repository interface {
	Create(ctx context.Context, email, name, passwordHash string, role types.Role) (model.User, error)
	Get(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, string, error)
}

type AccountOpener interface {
	OpenDefault(ctx context.Context, userID string) (model.Account, error)
}

type Claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is what a successful register or login hands back.
type Session struct {
	Token     string     `json:"access_token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      model.User `json:"user"`
}

type Service struct {
	tx       db.Transactor
	users    Repository
	accounts AccountOpener
	audit    audit.Auditor
	issuer   string
	secret   []byte
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

func NewService(tx db.Transactor, users Repository, accounts AccountOpener, auditor audit.Auditor, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{
		tx: tx, users: users, accounts: accounts, audit: auditor,
		issuer: issuer, secret: secret, ttl: ttl,
		cost: bcrypt.DefaultCost,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the user and their default trading account together.
func (s *Service) Register(ctx context.Context, email, password, name string) (Session, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	fields := map[string]string{}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		fields["email"] = "must be a valid email address"
	}
	if len(password) < minPasswordLen {
		fields["password"] = "must be at least 8 characters"
	}
	if name == "" || len(name) > 100 {
		fields["name"] = "must be 1-100 characters"
	}
	if len(fields) > 0 {
		return Session{}, apperr.Validation("invalid registration", fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	var user model.User
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err = s.users.Create(ctx, email, name, string(hash), types.RoleUser)
		if err != nil {
			return err
		}
		if _, err := s.accounts.OpenDefault(ctx, user.ID); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: user.ID, Action: "user.register", Resource: "users", ResourceID: user.ID,
			Changes: map[string]any{"email": email},
		})
	})
	if err != nil {
		return Session{}, err
	}
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, hash, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Session{}, apperr.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Session{}, apperr.ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	return s.users.Get(ctx, userID)
}

func (s *Service) issue(user model.User) (Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// ParseToken verifies signature, issuer and expiry and returns the subject
// and role.
func (s *Service) ParseToken(token string) (string, types.Role, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", "", apperr.Unauthorized("invalid token")
	}
	if claims.Subject == "" {
		return "", "", apperr.Unauthorized("invalid token")
	}
	role := claims.Role
	if role == "" {
		role = types.RoleUser
	}
	return claims.Subject, role, nil
}
