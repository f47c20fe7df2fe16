package service

import (
	"fmt"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/lifecycle"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/golang-jwt/jwt/v5"
)

// ============================================
// Auth Service
// ============================================

// AuthService validates the operator tokens issued by the identity
// provider. Tokens carry the operator id in "sub" and the console role in
// "role".
type AuthService interface {
	ValidateToken(token string) (*jwt.Token, error)
	ActorFromToken(token *jwt.Token) (lifecycle.ActingUser, error)
	Authenticate(token string) (lifecycle.ActingUser, error)
	IssueToken(actor lifecycle.ActingUser, ttl time.Duration) (string, error)
}

type authService struct {
	secret []byte
	now    func() time.Time
}

func NewAuthService(jwtSecret string) AuthService {
	return &authService{secret: []byte(jwtSecret), now: time.Now}
}

func (s *authService) ValidateToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return token, nil
}

func (s *authService) ActorFromToken(token *jwt.Token) (lifecycle.ActingUser, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return lifecycle.ActingUser{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return lifecycle.ActingUser{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	if !types.IsValidActorRole(types.ActorRole(role)) {
		return lifecycle.ActingUser{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	return lifecycle.ActingUser{ID: sub, Role: types.ActorRole(role)}, nil
}

func (s *authService) Authenticate(tokenString string) (lifecycle.ActingUser, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return lifecycle.ActingUser{}, err
	}
	return s.ActorFromToken(token)
}

// IssueToken signs a token for actor. Used by the development seeder and
// tests; production tokens come from the identity provider.
func (s *authService) IssueToken(actor lifecycle.ActingUser, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actor.ID,
		"role": string(actor.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(s.secret)
}
