package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleCaller = "caller"
	RoleAdmin  = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the holder of a token. ClinicNumber is set for caller tokens only.
type Claims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	ClinicNumber int    `json:"clinic_number,omitempty"`
}

type TokenManager interface {
	Issue(role string, clinicNumber int) (string, time.Time, error)
	Validate(token string) (*Claims, error)
}

type jwtManager struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, expiry time.Duration) TokenManager {
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &jwtManager{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

func (m *jwtManager) Issue(role string, clinicNumber int) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	subject := role
	if clinicNumber > 0 {
		subject = fmt.Sprintf("%s:%d", role, clinicNumber)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:         role,
		ClinicNumber: clinicNumber,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *jwtManager) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Role != RoleCaller && claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	if claims.Role == RoleCaller && claims.ClinicNumber <= 0 {
		return nil, fmt.Errorf("%w: caller token without clinic", ErrInvalidToken)
	}
	return claims, nil
}
