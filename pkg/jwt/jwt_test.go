package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-for-testing-purposes"

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "ada@example.com", []string{"user"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.True(t, claims.HasRole("user"))
	assert.False(t, claims.HasRole("admin"))
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	sign := func(claims Claims, method jwt.SigningMethod, secret string) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	valid := func() Claims {
		now := time.Now()
		return Claims{
			UserID:    userID,
			TokenType: AccessToken,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
	}

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "not.a.token" }},
		{"wrong secret", func() string { return sign(valid(), jwt.SigningMethodHS256, "other-secret") }},
		{"wrong algorithm", func() string { return sign(valid(), jwt.SigningMethodHS512, testSecret) }},
		{"wrong token type", func() string {
			c := valid()
			c.TokenType = "refresh"
			return sign(c, jwt.SigningMethodHS256, testSecret)
		}},
		{"missing user id", func() string {
			c := valid()
			c.UserID = uuid.Nil
			return sign(c, jwt.SigningMethodHS256, testSecret)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAccessToken(tt.token())
			assert.Error(t, err)
			assert.Nil(t, claims)
			assert.False(t, errors.Is(err, ErrExpired))
		})
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	service := NewService(testSecret, -time.Minute)

	token, err := service.GenerateAccessToken(uuid.New(), "", nil)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrExpired)
}
