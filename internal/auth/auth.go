// Package auth handles operator authentication for the HTTP API.
package auth

import (
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Config holds authenticator settings. Auth is enabled when both Username
// and Password are set.
type Config struct {
	Username  string
	Password  string // plaintext or a bcrypt hash
	JWTSecret string
}

// Authenticator validates operator credentials and issues JWT tokens.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator creates an authenticator. With no credentials
// configured, authentication is disabled and the API is open.
func NewAuthenticator(cfg Config) *Authenticator {
	enabled := cfg.Username != "" && cfg.Password != ""
	if !enabled {
		log.Printf("[Auth] No credentials configured, API authentication disabled")
	}

	var passwordHash []byte
	if enabled {
		if len(cfg.Password) == 60 && cfg.Password[0] == '$' {
			// Already a bcrypt hash.
			passwordHash = []byte(cfg.Password)
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				log.Printf("[Auth] Failed to hash password: %v", err)
				enabled = false
			} else {
				passwordHash = hash
			}
		}
	}

	return &Authenticator{
		enabled:      enabled,
		username:     cfg.Username,
		passwordHash: passwordHash,
		jwtManager:   NewJWTManager(cfg.JWTSecret),
	}
}

// IsEnabled returns whether authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a JWT token with its
// expiry as a Unix timestamp.
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}
	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT token.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}
