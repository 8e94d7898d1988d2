package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewService("secret", time.Minute)
	accountID := uuid.New()

	token, err := svc.GenerateAccessToken(accountID, RoleAdmin)
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.AccountID != accountID || claims.Role != RoleAdmin || claims.Subject != accountID.String() {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateAccessTokenErrors(t *testing.T) {
	svc := NewService("secret", time.Minute)

	expired, err := NewService("secret", -time.Minute).GenerateAccessToken(uuid.New(), RoleAccount)
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}
	if _, err := svc.ValidateAccessToken(expired); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	// Correct signature but not an access token
	wrongType := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: uuid.New(),
		Role:      RoleAccount,
		Type:      "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := wrongType.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := svc.ValidateAccessToken(signed); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for refresh type, got %v", err)
	}

	if _, err := svc.ValidateAccessToken("not.a.token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}
