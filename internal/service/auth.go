package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
)

const tokenTTL = 24 * time.Hour

// Identity is the verified caller the gateway attaches with. The
// identity provider itself is an external collaborator; we only mint
// and verify its HS256 tokens.
type Identity struct {
	PlayerID string
	Name     string
}

type AuthService interface {
	GenerateToken(playerID, name string) (string, error)
	VerifyToken(token string) (*Identity, error)
}

type authService struct {
	secretKey []byte
}

func NewAuthService(secretKey string) AuthService {
	return &authService{
		secretKey: []byte(secretKey),
	}
}

func (that *authService) GenerateToken(playerID, name string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  playerID,
		"name": name,
		"exp":  time.Now().Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(that.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (that *authService) VerifyToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", apperror.ErrUnauthorized, token.Header["alg"])
		}
		return that.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperror.ErrUnauthorized
	}

	playerID, _ := claims["sub"].(string)
	if playerID == "" {
		return nil, fmt.Errorf("%w: token has no subject", apperror.ErrUnauthorized)
	}

	name, _ := claims["name"].(string)

	return &Identity{PlayerID: playerID, Name: name}, nil
}
