package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizadmin-backend/internal/pkg/jwtutil"
	"bizadmin-backend/internal/repository"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(repository.NewUserRepository(newTestDB(t)), "auth-test", time.Hour)
}

func TestRegisterFirstAccountIsOwner(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	first, err := svc.Register(ctx, RegisterInput{Username: "founder", Email: "Founder@Example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.True(t, first.User.IsSuperuser)
	assert.Equal(t, "founder@example.com", first.User.Email)

	claims, err := jwtutil.ParseToken("auth-test", first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, claims.UserID)

	second, err := svc.Register(ctx, RegisterInput{Username: "clerk", Email: "clerk@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.False(t, second.User.IsSuperuser)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)
	_, err := svc.Register(ctx, RegisterInput{Username: "founder", Email: "founder@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "founder", Email: "other@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = svc.Register(ctx, RegisterInput{Username: "other", Email: "FOUNDER@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = svc.Register(ctx, RegisterInput{Username: "short", Email: "short@example.com", Password: "123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(ctx, RegisterInput{Username: "noemail", Email: "nope", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)
	registered, err := svc.Register(ctx, RegisterInput{Username: "founder", Email: "founder@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	byName, err := svc.Login(ctx, LoginInput{Login: "founder", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, byName.User.ID)

	byEmail, err := svc.Login(ctx, LoginInput{Login: "Founder@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, byEmail.User.ID)

	_, err = svc.Login(ctx, LoginInput{Login: "founder", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, LoginInput{Login: "ghost", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, LoginInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
