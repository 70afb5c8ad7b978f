package services

import (
	"errors"
	"time"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const guestPrefix = "Guest_"

type AuthService interface {
	ports.IdentityResolver
	GenerateToken(id, username string, role domain.Role) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims mirrors the token issued by the account API: id, role and an
// optional username.
type Claims struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
	logger         *zap.SugaredLogger
	now            func() time.Time
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration, logger *zap.SugaredLogger) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *authService) GenerateToken(id, username string, role domain.Role) (string, error) {
	now := s.now()
	claims := &Claims{
		ID:       id,
		Role:     string(role),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.ID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Resolve never rejects: a missing or unverifiable token yields a guest.
func (s *authService) Resolve(token, persistentID string, conn domain.ConnectionID) domain.Identity {
	if token != "" {
		claims, err := s.ValidateToken(token)
		if err == nil {
			return IdentityFromClaims(claims, persistentID, conn)
		}
		s.logger.Debugw("token rejected, connecting as guest",
			"connection_id", conn,
			"error", err,
		)
	}
	return GuestIdentity(persistentID, conn)
}

func IdentityFromClaims(claims *Claims, persistentID string, conn domain.ConnectionID) domain.Identity {
	identity := domain.Identity{
		ID:           claims.ID,
		PersistentID: persistentID,
		Username:     claims.Username,
		Role:         domain.ParseRole(claims.Role),
	}
	if identity.PersistentID == "" {
		identity.PersistentID = claims.ID
	}
	if identity.Username == "" {
		identity.Username = guestName(conn)
	}
	return identity
}

func GuestIdentity(persistentID string, conn domain.ConnectionID) domain.Identity {
	if persistentID == "" {
		return domain.Identity{
			ID:           string(conn),
			PersistentID: string(conn),
			Username:     guestName(conn),
			Role:         domain.RoleUser,
		}
	}
	return domain.Identity{
		ID:           persistentID,
		PersistentID: persistentID,
		Username:     persistentID,
		Role:         domain.RoleUser,
	}
}

func guestName(conn domain.ConnectionID) string {
	id := string(conn)
	if len(id) > 6 {
		id = id[:6]
	}
	return guestPrefix + id
}
