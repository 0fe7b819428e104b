package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/brewloyal/api/internal/auth"
	"github.com/google/uuid"
)

// Destructive actions that need a second, token-confirmed call.
const (
	ActionOrderCancel   = "order_cancel"
	ActionOrderDelete   = "order_delete"
	ActionKitchenCancel = "kitchen_cancel"
)

var ErrInvalidConfirmToken = errors.New("confirmation token is invalid or expired")

// Confirmer issues and checks the signed tokens behind two-step actions.
// The first call returns a token bound to the action, outlet and order
// ids; only a second call presenting that token applies the change.
type Confirmer struct {
	secret string
	ttl    time.Duration
}

func NewConfirmer(secret string, ttl time.Duration) *Confirmer {
	return &Confirmer{secret: secret, ttl: ttl}
}

func (c *Confirmer) Issue(action string, outletID uuid.UUID, orderIDs ...uuid.UUID) (string, error) {
	token, err := auth.GenerateConfirmToken(c.secret, action, outletID, orderIDs, c.ttl)
	if err != nil {
		return "", fmt.Errorf("issue confirm token: %w", err)
	}
	return token, nil
}

func (c *Confirmer) Check(token, action string, outletID uuid.UUID, orderIDs ...uuid.UUID) error {
	if err := auth.ValidateConfirmToken(c.secret, token, action, outletID, orderIDs); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfirmToken, err)
	}
	return nil
}
