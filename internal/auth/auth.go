package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
)

var (
	ErrEmailTaken      = errors.New("user already exists")
	ErrInvalidPassword = errors.New("invalid password")
	ErrGoogleToken     = errors.New("google token verification failed")
)

type Service struct {
	store          store.Store
	jwtSecret      string
	googleClientID string
	tokenTTL       time.Duration
}

type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func New(st store.Store, jwtSecret, googleClientID string) *Service {
	return NewWithTokenTTL(st, jwtSecret, googleClientID, 24*time.Hour)
}

func NewWithTokenTTL(st store.Store, jwtSecret, googleClientID string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:          st,
		jwtSecret:      jwtSecret,
		googleClientID: googleClientID,
		tokenTTL:       tokenTTL,
	}
}

// Register creates a local-credential account and returns it with a
// signed token. The new user starts online.
func (s *Service) Register(username, email, password string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if _, err := s.store.UserByEmail(email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Password:  string(hash),
		Status:    models.StatusOnline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("failed to register user: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies local credentials, marks the user online and returns a
// signed token.
func (s *Service) Login(email, password string) (*models.User, string, error) {
	user, err := s.store.UserByEmail(strings.TrimSpace(email))
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", ErrInvalidPassword
	}

	user.Status = models.StatusOnline
	user.UpdatedAt = time.Now()
	if err := s.store.SaveUser(user); err != nil {
		return nil, "", fmt.Errorf("failed to update user: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// LoginWithGoogle verifies a Google ID token server-side and signs the
// user in, creating the account on first login. An existing account with
// the same email gets the Google subject attached.
func (s *Service) LoginWithGoogle(ctx context.Context, rawToken string) (*models.User, string, error) {
	payload, err := idtoken.Validate(ctx, rawToken, s.googleClientID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrGoogleToken, err)
	}

	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	if email == "" {
		return nil, "", fmt.Errorf("%w: no email claim", ErrGoogleToken)
	}

	now := time.Now()
	user, err := s.store.UserByEmail(email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		user = &models.User{
			ID:        uuid.NewString(),
			Username:  name,
			Email:     email,
			Avatar:    picture,
			GoogleID:  payload.Subject,
			Status:    models.StatusOnline,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		return nil, "", err
	default:
		user.Status = models.StatusOnline
		user.UpdatedAt = now
		if user.GoogleID == "" {
			user.GoogleID = payload.Subject
		}
	}
	if err := s.store.SaveUser(user); err != nil {
		return nil, "", fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) GenerateToken(user *models.User) (string, error) {
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
