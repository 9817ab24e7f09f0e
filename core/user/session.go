package user

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Session is the identity carried by a verified token.
type Session struct {
	UserID string
	Email  string
	Role   Role
}

func (c *Claims) Session() Session {
	return Session{UserID: c.Subject, Email: c.Email, Role: c.Role}
}

// Issuer issues and verifies signed, time-limited session tokens.
type Issuer struct {
	key     []byte
	method  jwt.SigningMethod
	issuer  string
	timeout time.Duration
}

func NewIssuer(conf *core.Config) *Issuer {
	return &Issuer{
		key:     []byte(conf.SecretKey),
		method:  jwt.SigningMethodHS256,
		issuer:  conf.AppName,
		timeout: conf.JWTExpirationDelta,
	}
}

// SigningKey is shared with the HTTP JWT middleware.
func (iss *Issuer) SigningKey() []byte { return iss.key }

// SigningMethod is the name of the signing algorithm.
func (iss *Issuer) SigningMethod() string { return iss.method.Alg() }

func (iss *Issuer) Claims(userID, email string, role Role) *Claims {
	now := core.NowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    iss.issuer,
			Subject:   userID,
			ExpiresAt: now.Add(iss.timeout).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: email,
		Role:  role,
	}
}

// Issue generates a signed token string for the given identity.
func (iss *Issuer) Issue(userID, email string, role Role) (string, error) {
	token := jwt.NewWithClaims(iss.method, iss.Claims(userID, email, role))
	ss, err := token.SignedString(iss.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify fails with ErrInvalidToken when the token is malformed, badly signed or expired.
func (iss *Issuer) Verify(tokenStr string) (Session, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != iss.method.Alg() {
			return nil, ErrInvalidToken
		}
		return iss.key, nil
	})
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	return claims.Session(), nil
}
