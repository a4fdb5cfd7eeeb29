package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/wishpop/wishpop/internal/config"
	"github.com/wishpop/wishpop/internal/server"
	"github.com/wishpop/wishpop/internal/store"
)

// PartyApp is the HTTP surface: room management, invite links and QR
// export, the theme catalog, and the websocket upgrade endpoint.
type PartyApp struct {
	log            *log.Logger
	store          store.Store
	ps             *server.PartyServer
	srv            *http.Server
	publicURL      string
	allowedOrigins []string
}

func NewPartyApp(mux *http.ServeMux, logger *log.Logger, ps *server.PartyServer, st store.Store, cfg *config.Config) *PartyApp {
	s := &PartyApp{
		log:            logger,
		store:          st,
		ps:             ps,
		publicURL:      cfg.PublicURL,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("GET /api/rooms/{code}", s.getRoom)
	mux.HandleFunc("GET /api/rooms/{code}/invite", s.invite)
	mux.HandleFunc("GET /api/rooms/{code}/qr", s.inviteQR)
	mux.HandleFunc("GET /api/themes", s.listThemes)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *PartyApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *PartyApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
