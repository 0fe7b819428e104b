// Package feed turns row-change notifications from PostgreSQL into
// websocket events. The migrations install triggers that NOTIFY on the
// fulfillment_changes channel for every write to orders,
// order_item_redemptions and kitchen_item_tracking.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brewloyal/api/internal/ws"
	"github.com/google/uuid"
)

// Channel is the NOTIFY channel written by the change-feed triggers.
const Channel = "fulfillment_changes"

// Change operations, as reported by TG_OP.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

var ErrInvalidChange = errors.New("invalid change payload")

// Change is one row-level write. Old is null for inserts, New is null for
// deletes. Rows carry routing and status columns only; consumers re-fetch
// what they display.
type Change struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Old   json.RawMessage `json:"old"`
	New   json.RawMessage `json:"new"`
}

// routing is the subset of a row summary used to pick rooms.
type routing struct {
	OutletID *uuid.UUID `json:"outlet_id"`
	UserID   *uuid.UUID `json:"user_id"`
}

// DecodeChange parses a NOTIFY payload.
func DecodeChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("%w: missing table", ErrInvalidChange)
	}
	switch c.Type {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Change{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidChange, c.Type)
	}
	return c, nil
}

// Route returns the rooms that must see c: the outlet of the affected
// order and its customer. Both row images are consulted so a move between
// owners reaches old and new subscribers.
func Route(c Change) []string {
	var rooms []string
	seen := make(map[string]bool, 4)
	add := func(room string) {
		if !seen[room] {
			seen[room] = true
			rooms = append(rooms, room)
		}
	}

	for _, raw := range []json.RawMessage{c.New, c.Old} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var r routing
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if r.OutletID != nil && *r.OutletID != uuid.Nil {
			add(ws.OutletRoom(*r.OutletID))
		}
		if r.UserID != nil && *r.UserID != uuid.Nil {
			add(ws.UserRoom(*r.UserID))
		}
	}
	return rooms
}
