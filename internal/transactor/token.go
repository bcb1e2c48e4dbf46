package transactor

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SystemAccount is the account id used by platform services.
const SystemAccount = "anticrm@hc.engineering"

// Claims identify the caller to a workspace transactor.
type Claims struct {
	Email     string            `json:"email"`
	Workspace string            `json:"workspace"`
	Extra     map[string]string `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a system-account token for workspace with secret.
func GenerateToken(secret, workspace, serviceID string) (string, error) {
	claims := Claims{
		Email:     SystemAccount,
		Workspace: workspace,
		Extra:     map[string]string{"service": serviceID},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token produced by GenerateToken.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}
