package auth

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrConfirmMismatch is returned when a confirmation token was issued for a
// different action, outlet or set of orders than the one being confirmed.
var ErrConfirmMismatch = errors.New("confirmation token does not match request")

// Claims identify a signed-in admin user, or a customer when Role is
// CUSTOMER and OutletID is zero.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	OutletID uuid.UUID `json:"outlet_id"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

// ConfirmClaims back the second step of destructive two-step actions
// (kitchen cancel, order cancel, order delete).
type ConfirmClaims struct {
	Action   string      `json:"action"`
	OutletID uuid.UUID   `json:"outlet_id"`
	OrderIDs []uuid.UUID `json:"order_ids"`
	jwt.RegisteredClaims
}

func GenerateToken(secret string, userID, outletID uuid.UUID, role string) (string, error) {
	claims := Claims{
		UserID:   userID,
		OutletID: outletID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// refreshAudience marks refresh tokens so access, customer and confirmation
// tokens can never be exchanged for a new session.
const refreshAudience = "session-refresh"

// ErrNotRefreshToken is returned when a token is signed correctly but was not
// issued as a refresh token.
var ErrNotRefreshToken = errors.New("not a refresh token")

func GenerateRefreshToken(secret string, userID uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{refreshAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, keyFunc(secret))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ParseRefreshToken returns the admin user id a refresh token was issued to.
func ParseRefreshToken(secret, tokenStr string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, keyFunc(secret))
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	if !slices.Contains(claims.Audience, refreshAudience) {
		return uuid.Nil, ErrNotRefreshToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("refresh subject: %w", err)
	}
	return userID, nil
}

// GenerateConfirmToken signs a short-lived token binding action to the
// outlet and the exact set of order ids the user was shown.
func GenerateConfirmToken(secret, action string, outletID uuid.UUID, orderIDs []uuid.UUID, ttl time.Duration) (string, error) {
	ids := sortedIDs(orderIDs)
	claims := ConfirmClaims{
		Action:   action,
		OutletID: outletID,
		OrderIDs: ids,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateConfirmToken checks signature and expiry, then that the token was
// issued for the same action, outlet and order ids (order-insensitive).
func ValidateConfirmToken(secret, tokenStr, action string, outletID uuid.UUID, orderIDs []uuid.UUID) error {
	token, err := jwt.ParseWithClaims(tokenStr, &ConfirmClaims{}, keyFunc(secret))
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(*ConfirmClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid token")
	}
	if claims.Action != action || claims.OutletID != outletID {
		return ErrConfirmMismatch
	}
	if !slices.Equal(claims.OrderIDs, sortedIDs(orderIDs)) {
		return ErrConfirmMismatch
	}
	return nil
}

func keyFunc(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}
