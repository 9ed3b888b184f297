package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/pkg/jwtutil"
	"bizadmin-backend/internal/repository"
)

const minPasswordLength = 8

// AuthService issues tokens for the back-office accounts. The first account
// ever registered becomes the owner and receives job notifications.
type AuthService struct {
	users    *repository.UserRepository
	secret   string
	tokenTTL time.Duration
	logger   logrus.FieldLogger
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput.Login is a username or an email address.
type LoginInput struct {
	Login    string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(users *repository.UserRepository, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:    users,
		secret:   secret,
		tokenTTL: tokenTTL,
		logger:   logging.Discard(),
	}
}

func (s *AuthService) WithLogger(logger logrus.FieldLogger) *AuthService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	switch {
	case username == "":
		return nil, invalidInput("username is required")
	case email == "" || !strings.Contains(email, "@"):
		return nil, invalidInput("a valid email is required")
	case len(input.Password) < minPasswordLength:
		return nil, invalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	owners, err := s.users.ListSuperusers(ctx)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsSuperuser:  len(owners) == 0,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// lost a race against a concurrent registration
			if err := s.ensureAvailable(ctx, username, email); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: account could not be created", ErrTransactionConflict)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "owner": user.IsSuperuser}).Info("account registered")
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	login := strings.TrimSpace(input.Login)
	if login == "" || input.Password == "" {
		return nil, invalidInput("login and password are required")
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.users.GetByUsername(ctx, login)
	}
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return nil, ErrInvalidCredential
	}
	return s.issue(user)
}

func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	if id == 0 {
		return nil, invalidInput("user id is required")
	}
	return s.users.GetByID(ctx, id)
}

func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	byName, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if byName != nil {
		return ErrUsernameExists
	}
	byEmail, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if byEmail != nil {
		return ErrEmailExists
	}
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.secret, s.tokenTTL, user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token failed: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}
