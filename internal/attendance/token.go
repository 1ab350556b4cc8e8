package attendance

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "presqr"
	// RFC 3339 with milliseconds, matching the precision sessions are stored with
	tokenTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// TokenPayload is the content a QR code carries
type TokenPayload struct {
	SessionID   uuid.UUID
	CourseID    uuid.UUID
	CourseCode  string
	CourseName  string
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// tokenClaims carries every semantic field as a string. No registered exp/iat:
// expiry is checked against the service clock.
type tokenClaims struct {
	SessionID   string `json:"sessionId"`
	CourseID    string `json:"courseId"`
	CourseCode  string `json:"courseCode"`
	CourseName  string `json:"courseName"`
	GeneratedAt string `json:"generatedAt"`
	ExpiresAt   string `json:"expiresAt"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a codec with the given HMAC key
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret)}
}

// Encode signs p as an HS256 JWT
func (c *TokenCodec) Encode(p TokenPayload) (string, error) {
	claims := &tokenClaims{
		SessionID:   p.SessionID.String(),
		CourseID:    p.CourseID.String(),
		CourseCode:  p.CourseCode,
		CourseName:  p.CourseName,
		GeneratedAt: p.GeneratedAt.Format(tokenTimeLayout),
		ExpiresAt:   p.ExpiresAt.Format(tokenTimeLayout),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and issuer of raw and parses its payload.
// Every failure wraps ErrMalformedToken.
func (c *TokenCodec) Decode(raw string) (TokenPayload, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var p TokenPayload
	if p.SessionID, err = uuid.Parse(claims.SessionID); err != nil {
		return TokenPayload{}, fmt.Errorf("%w: sessionId: %v", ErrMalformedToken, err)
	}
	if p.CourseID, err = uuid.Parse(claims.CourseID); err != nil {
		return TokenPayload{}, fmt.Errorf("%w: courseId: %v", ErrMalformedToken, err)
	}
	if p.GeneratedAt, err = time.Parse(time.RFC3339Nano, claims.GeneratedAt); err != nil {
		return TokenPayload{}, fmt.Errorf("%w: generatedAt: %v", ErrMalformedToken, err)
	}
	if p.ExpiresAt, err = time.Parse(time.RFC3339Nano, claims.ExpiresAt); err != nil {
		return TokenPayload{}, fmt.Errorf("%w: expiresAt: %v", ErrMalformedToken, err)
	}
	if !p.ExpiresAt.After(p.GeneratedAt) {
		return TokenPayload{}, fmt.Errorf("%w: window is empty", ErrMalformedToken)
	}
	if claims.CourseCode == "" || claims.CourseName == "" {
		return TokenPayload{}, fmt.Errorf("%w: course code and name are required", ErrMalformedToken)
	}
	p.CourseCode = claims.CourseCode
	p.CourseName = claims.CourseName
	return p, nil
}
