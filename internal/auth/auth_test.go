package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenshop/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	token, err := iss.Issue(&model.User{ID: "u1", Role: model.RoleAdmin})
	require.NoError(t, err)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.IsAdmin())
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := NewIssuer("one", time.Hour).Issue(&model.User{ID: "u1", Role: model.RoleUser})
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	iss := NewIssuer("s3cret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := iss.Issue(&model.User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewIssuer("s3cret", time.Minute).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{UserID: "u1", Role: model.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuerName,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewIssuer("s3cret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Garbage(t *testing.T) {
	_, err := NewIssuer("s3cret", time.Hour).Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{UserID: "u1", Role: model.RoleUser})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", c.UserID)
	assert.False(t, c.IsAdmin())
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrPasswordMismatch)
}

func TestHashPassword_TooShort(t *testing.T) {
	_, err := HashPassword("abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 6")
}
