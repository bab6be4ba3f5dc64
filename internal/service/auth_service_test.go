package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/trial-subjects-api/internal/models"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail    *models.User
	findByEmailErr error
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, userID string) error {
	r.users = append(r.users, userID)
	return nil
}

func newAuthUser(t *testing.T, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: active, Role: models.RoleInvestigator}
}

func testAuthConfig() AuthConfig {
	return AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "trial-subjects-api"}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: newAuthUser(t, true)}
	scopes := &recordingInvalidator{}
	svc := NewAuthService(repo, scopes, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: " user@example.com ", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleInvestigator, res.User.Role)
	assert.Equal(t, []string{"u1"}, scopes.users)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "trial-subjects-api", claims.Issuer)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{userByEmail: newAuthUser(t, false)}, nil, validator.New(), zap.NewNop(), testAuthConfig())
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	assertErrorCode(t, err, appErrors.ErrInactiveAccount)

	svc = NewAuthService(&mockAuthRepo{userByEmail: newAuthUser(t, true)}, nil, validator.New(), zap.NewNop(), testAuthConfig())
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	assertErrorCode(t, err, appErrors.ErrInvalidCredentials)

	svc = NewAuthService(&mockAuthRepo{}, nil, validator.New(), zap.NewNop(), testAuthConfig())
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "password"})
	assertErrorCode(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "password"})
	assertErrorCode(t, err, appErrors.ErrValidation)
}

func TestValidateTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, validator.New(), zap.NewNop(), testAuthConfig())
	user := newAuthUser(t, true)

	token, err := svc.generateAccessToken(user, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assertErrorCode(t, err, appErrors.ErrUnauthorized)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour, Issuer: "trial-subjects-api"})
	token, err = other.generateAccessToken(user, time.Now())
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assertErrorCode(t, err, appErrors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assertErrorCode(t, err, appErrors.ErrUnauthorized)
}
