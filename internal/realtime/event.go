package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventType tags a domain event variant on the wire.
type EventType string

const (
	ProductAdded    EventType = "product-added"
	ProductUpdated  EventType = "product-updated"
	ProductDeleted  EventType = "product-deleted"
	CommentAdded    EventType = "comment-added"
	ReactionChanged EventType = "reaction-changed"
	MemberInvited   EventType = "member-invited"
	MemberRemoved   EventType = "member-removed"
)

func (t EventType) Valid() bool {
	switch t {
	case ProductAdded, ProductUpdated, ProductDeleted, CommentAdded, ReactionChanged, MemberInvited, MemberRemoved:
		return true
	}
	return false
}

// Structural events change who can see the wishlist; clients resync instead of patching.
func (t EventType) Structural() bool {
	return t == MemberInvited || t == MemberRemoved
}

// Event is one completed mutation. Payload is always the full post-mutation entity.
type Event struct {
	Type       EventType       `json:"type"`
	WishlistID uuid.UUID       `json:"wishlistId"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent encodes payload and tags it with the wishlist it belongs to.
func NewEvent(eventType EventType, wishlistID uuid.UUID, payload any) (Event, error) {
	if !eventType.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", eventType)
	}
	if wishlistID == uuid.Nil {
		return Event{}, fmt.Errorf("wishlist id required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, WishlistID: wishlistID, Payload: raw}, nil
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, dst)
}

// Control frame types exchanged on the websocket besides domain events.
const (
	FrameJoinRoom   = "join-room"
	FrameLeaveRoom  = "leave-room"
	FrameRoomJoined = "room-joined"
	FrameRoomLeft   = "room-left"
	FrameError      = "error"
)

// ControlFrame is a client request or a server acknowledgement. Error frames
// carry an error code so clients can tell a refusal from a transient failure.
type ControlFrame struct {
	Type       string `json:"type"`
	WishlistID string `json:"wishlistId,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}
