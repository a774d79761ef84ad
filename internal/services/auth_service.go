package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/logger"
	"github.com/netwarden/netwarden/internal/models"
)

// ErrInvalidCredentials covers unknown users, disabled accounts and wrong
// passwords alike; callers get no oracle on which it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned for expired or malformed session tokens.
var ErrInvalidToken = errors.New("invalid token")

const tokenTTL = 24 * time.Hour

type AuthService struct {
	DB     *gorm.DB
	secret []byte
}

func NewAuthService(db *gorm.DB, cfg config.Config) *AuthService {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Ephemeral secret: sessions do not survive restarts. Fine for
		// development, logged so production operators notice.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err == nil {
			secret = []byte(hex.EncodeToString(buf))
		}
		logger.Log().Warn("NW_JWT_SECRET not set, using ephemeral signing key")
	}
	return &AuthService{DB: db, secret: secret}
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Login verifies credentials and issues a signed session token.
func (s *AuthService) Login(email, password string) (string, *models.User, error) {
	var user models.User
	if err := s.DB.First(&user, "email = ?", email).Error; err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.Enabled || !user.CheckPassword(password) {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	claims := sessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	user.LastLogin = &now
	s.DB.Model(&user).Update("last_login", &now)
	return token, &user, nil
}

// ValidateToken parses a session token and loads its user.
func (s *AuthService) ValidateToken(token string) (*models.User, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", claims.Subject).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if !user.Enabled {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// EnsureAdmin bootstraps a default admin account on an empty user table so
// the API is reachable on first boot.
func (s *AuthService) EnsureAdmin(email, password string) error {
	var count int64
	if err := s.DB.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := models.User{Email: email, Name: "Administrator", Role: "admin", Enabled: true}
	if err := admin.SetPassword(password); err != nil {
		return err
	}
	if err := s.DB.Create(&admin).Error; err != nil {
		return err
	}
	logger.Log().WithField("email", email).Info("bootstrapped admin account")
	return nil
}
