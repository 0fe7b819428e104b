package ws

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Room kinds. A room is "<kind>:<uuid>".
const (
	RoomOutlet = "outlet"
	RoomUser   = "user"
)

var ErrInvalidRoom = errors.New("invalid room")

// OutletRoom is the room of an outlet's kitchen board and CMS sessions.
func OutletRoom(outletID uuid.UUID) string {
	return RoomOutlet + ":" + outletID.String()
}

// UserRoom is the room of one customer's sessions.
func UserRoom(userID uuid.UUID) string {
	return RoomUser + ":" + userID.String()
}

// ParseRoom splits a room name into its kind and id.
func ParseRoom(room string) (kind string, id uuid.UUID, err error) {
	kind, rawID, ok := strings.Cut(room, ":")
	if !ok || (kind != RoomOutlet && kind != RoomUser) {
		return "", uuid.Nil, ErrInvalidRoom
	}
	id, err = uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, ErrInvalidRoom
	}
	return kind, id, nil
}
