package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/wishpop/wishpop/internal/server"
	"github.com/wishpop/wishpop/internal/store"
	"github.com/wishpop/wishpop/internal/themes"
	"github.com/wishpop/wishpop/internal/types"
)

const qrSize = 256

type CreateRoomRequest struct {
	ThemeId string `json:"theme_id"`
}

type RoomResponse struct {
	Room  types.Room   `json:"room"`
	Theme themes.Theme `json:"theme"`
}

type InviteResponse struct {
	Url string `json:"url"`
}

func (s *PartyApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *PartyApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	// An unknown or empty theme id resolves to the catalog default.
	themeId := req.ThemeId
	if !themes.Valid(themeId) {
		themeId = themes.DefaultId()
	}

	room, err := s.store.CreateRoom(themeId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, RoomResponse{
		Room:  room,
		Theme: themes.Lookup(room.ThemeId),
	})
}

func (s *PartyApp) getRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	room, err := s.store.GetRoom(code)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, RoomResponse{
		Room:  room,
		Theme: themes.Lookup(room.ThemeId),
	})
}

// inviteUrl builds the guest link for a room code.
func (s *PartyApp) inviteUrl(code string) string {
	return fmt.Sprintf("%s/room/%s?role=guest", strings.TrimRight(s.publicURL, "/"), code)
}

func (s *PartyApp) invite(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	s.writeJson(w, http.StatusOK, InviteResponse{Url: s.inviteUrl(code)})
}

func (s *PartyApp) inviteQR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	png, err := qrcode.Encode(s.inviteUrl(code), qrcode.Medium, qrSize)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		s.log.Printf("write qr png: %v", err)
	}
}

func (s *PartyApp) listThemes(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, themes.Catalog)
}

func (s *PartyApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room")
	if roomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// Absent or unrecognized roles resolve to guest. An unknown room
	// code is a valid empty state, never an error.
	role := types.ParseRole(r.URL.Query().Get("role"))

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(roomCode, role, conn, s.ps, s.log)

	s.ps.Register(client)
	go client.Write()
	go client.Read()
	s.ps.Join(client)
}
