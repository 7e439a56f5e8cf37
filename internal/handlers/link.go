// internal/handlers/link.go
package handlers

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/quizring/quizring/internal/session"
)

// ShareLink builds the URL that addresses a room for the given role. The
// format is lossless: the room rides in ?room=<id>, and the player role in
// &role=player. An omitted role means owner.
func ShareLink(base, roomID string, role session.Role) string {
	v := url.Values{}
	v.Set("room", roomID)
	if role == session.RolePlayer {
		v.Set("role", "player")
	}
	return fmt.Sprintf("%s/?%s", base, v.Encode())
}

// ParseShareLink recovers the room id and role from a share link. Any role
// value other than "player" (including absence) resolves to owner; an absent
// room is an error.
func ParseShareLink(raw string) (roomID string, role session.Role, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse share link: %w", err)
	}
	q := u.Query()
	roomID = q.Get("room")
	if roomID == "" {
		return "", "", errors.New("share link has no room")
	}
	role = session.RoleOwner
	if q.Get("role") == "player" {
		role = session.RolePlayer
	}
	return roomID, role, nil
}
