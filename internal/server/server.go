package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/wishpop/wishpop/internal/stats"
	"github.com/wishpop/wishpop/internal/store"
)

// PartyServer multiplexes websocket clients onto per-room engines.
// Rooms are loaded lazily on the first join and unloaded after sitting
// idle with no clients.
type PartyServer struct {
	log            *log.Logger
	store          store.Store
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *Client
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewPartyServer(logger *log.Logger, st store.Store, su stats.StatsProvider) (*PartyServer, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	for _, metric := range []string{
		stats.ActiveRooms,
		stats.ConnectedClients,
		stats.WishesSubmitted,
		stats.BalloonsPopped,
		stats.MilestonesReached,
	} {
		su.RegisterMetric(metric)
	}

	return &PartyServer{
		log:            logger,
		store:          st,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *Client, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string, 16),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (ps *PartyServer) Run() {
	for {
		select {
		case c := <-ps.joinChan:
			room, ok := ps.rooms[c.roomCode]
			if !ok {
				room = newRoom(c.roomCode, ps)
				ps.rooms[c.roomCode] = room
				go room.start()
				ps.stats.Incr(stats.ActiveRooms)
			}

			select {
			case room.joinChan <- c:
			default:
				ps.log.Printf("join channel full on room %q", room.code)
				c.queueMessage(ErrServiceUnavailable(0))
			}
		case c := <-ps.registerChan:
			ps.log.Printf("adding %s connection for room %q", c.role, c.roomCode)
			ps.addClient(c)
			ps.stats.Incr(stats.ConnectedClients)
		case c := <-ps.deRegisterChan:
			ps.log.Printf("removing %s connection for room %q", c.role, c.roomCode)
			ps.removeClient(c)
			ps.stats.Decr(stats.ConnectedClients)
		case code := <-ps.unloadRoomChan:
			if r, ok := ps.rooms[code]; ok {
				ps.log.Printf("unloading room %q", code)
				delete(ps.rooms, code)
				done := make(chan struct{})
				r.exit <- exitReq{done: done}
				<-done
				ps.stats.Decr(stats.ActiveRooms)
			}
		case <-ps.stop:
			ps.log.Println("shutting down rooms")
			for _, r := range ps.rooms {
				ps.log.Printf("shutting down room %q", r.code)
				done := make(chan struct{})
				r.exit <- exitReq{done: done}
				<-done
			}

			close(ps.done)
			return
		}
	}
}

// Register adds a new connection; Join routes it to its room engine.
func (ps *PartyServer) Register(c *Client) {
	ps.registerChan <- c
}

func (ps *PartyServer) Join(c *Client) {
	ps.joinChan <- c
}

func (ps *PartyServer) addClient(c *Client) {
	ps.clientsLock.Lock()
	defer ps.clientsLock.Unlock()
	ps.clients[c] = struct{}{}
}

func (ps *PartyServer) removeClient(c *Client) {
	ps.clientsLock.Lock()
	defer ps.clientsLock.Unlock()
	delete(ps.clients, c)
}

// Shutdown stops all clients and rooms, waiting for the run loop to
// drain or the context to expire.
func (ps *PartyServer) Shutdown(ctx context.Context) error {
	ps.log.Println("received shutdown signal")

	ps.clientsLock.Lock()
	for c := range ps.clients {
		c.stopClient()
	}
	ps.clientsLock.Unlock()

	close(ps.stop)

	select {
	case <-ps.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
