package server

import (
	"net/http"
	"time"

	"github.com/wishpop/wishpop/internal/board"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a request from a connected viewer. Exactly one of
// the operation fields is set.
type ClientMessage struct {
	BaseMessage
	Publish *Publish     `json:"publish,omitempty"`
	Pop     *Pop         `json:"pop,omitempty"`
	Theme   *ThemeChange `json:"theme,omitempty"`
	Leave   *Leave       `json:"leave,omitempty"`
	client  *Client
}

// Publish submits a wish draft (guest only).
type Publish struct {
	Text string `json:"text"`
}

// Pop flips a balloon believed to be unpopped (host only).
type Pop struct {
	MessageId string `json:"message_id"`
}

// ThemeChange selects a new room theme (host only).
type ThemeChange struct {
	ThemeId string `json:"theme_id"`
}

type Leave struct{}

// ServerMessage is a push to a connected viewer: a response to one of
// its requests, a full view-model snapshot, or an animation event.
type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Event    *Event    `json:"event,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

// Snapshot is a role-projected view of the room. Exactly one of Host
// and Guest is set, matching the receiving client's role.
type Snapshot struct {
	RoomId string           `json:"room_id"`
	Host   *board.HostView  `json:"host,omitempty"`
	Guest  *board.GuestView `json:"guest,omitempty"`
}

// Event carries pop animation sequencing for host displays.
type Event struct {
	Popping  *PoppingEvent  `json:"popping,omitempty"`
	Settled  *SettledEvent  `json:"settled,omitempty"`
	Confetti *ConfettiEvent `json:"confetti,omitempty"`
}

// PoppingEvent starts the pop animation for a balloon.
type PoppingEvent struct {
	MessageId string `json:"message_id"`
}

// SettledEvent reveals the message text in its settled note form.
type SettledEvent struct {
	MessageId string           `json:"message_id"`
	Text      string           `json:"text"`
	Layout    board.NoteLayout `json:"layout"`
}

// ConfettiEvent celebrates a popped-count milestone.
type ConfettiEvent struct {
	PoppedCount int `json:"popped_count"`
}

func NoErrOK(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrForbidden(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "forbidden",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
