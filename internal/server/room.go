package server

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/wishpop/wishpop/internal/board"
	"github.com/wishpop/wishpop/internal/stats"
	"github.com/wishpop/wishpop/internal/store"
	"github.com/wishpop/wishpop/internal/themes"
	"github.com/wishpop/wishpop/internal/types"
)

const idleRoomTimeout = time.Second * 5

// popSettleDelay is the gap between the popping animation starting and
// the message text being revealed in its settled form.
const popSettleDelay = 150 * time.Millisecond

type exitReq struct {
	done chan struct{}
}

// Room is the per-room engine. It owns the live projection state for
// one room code: the latest message and config snapshots from the
// store, transient balloon motion parameters, and the pop animation
// state machine. All of it is confined to the room goroutine.
type Room struct {
	code string
	ps   *PartyServer
	log  *log.Logger

	joinChan    chan *Client
	leaveChan   chan *Client
	actionChan  chan *ClientMessage
	settleChan  chan string
	refreshChan chan *Client

	clients    map[*Client]struct{}
	clientLock sync.RWMutex

	msgSub  *store.Subscription[[]types.Message]
	roomSub *store.Subscription[*types.Room]

	messages   []types.Message
	msgsLoaded bool
	config     *types.Room
	cfgLoaded  bool
	ensured    bool

	motions map[string]board.BalloonMotion
	pops    *board.PopTracker
	rng     *rand.Rand

	// killTimer unloads the room once it has sat empty for a while.
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(code string, ps *PartyServer) *Room {
	return &Room{
		code:       code,
		ps:         ps,
		log:        ps.log,
		joinChan:    make(chan *Client, 256),
		leaveChan:   make(chan *Client, 256),
		actionChan:  make(chan *ClientMessage, 256),
		settleChan:  make(chan string, 64),
		refreshChan: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		msgSub:     ps.store.SubscribeMessages(code),
		roomSub:    ps.store.SubscribeRoom(code),
		motions:    make(map[string]board.BalloonMotion),
		pops:       board.NewPopTracker(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		exit:       make(chan exitReq),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.code)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case c := <-r.joinChan:
			r.handleJoin(c)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.actionChan:
			switch {
			case msg.Publish != nil:
				r.handlePublish(msg)
			case msg.Pop != nil:
				r.handlePop(msg)
			case msg.Theme != nil:
				r.handleTheme(msg)
			}
		case msgs, ok := <-r.msgSub.C:
			if ok {
				r.handleMessagesSnapshot(msgs)
			}
		case cfg, ok := <-r.roomSub.C:
			if ok {
				r.handleRoomSnapshot(cfg)
			}
		case id := <-r.settleChan:
			r.handleSettle(id)
		case c := <-r.refreshChan:
			r.handleRefresh(c)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(c *Client) {
	// Stop the kill timer since we have a new client.
	r.killTimer.Stop()

	r.addClient(c)
	c.setRoom(r)

	if c.role == types.RoleHost {
		r.ensureConfig()
	}

	c.queueMessage(NoErrOK(0))
	r.sendSnapshot(c)
}

func (r *Room) handleLeave(c *Client) {
	r.removeClient(c)
}

// ensureConfig lazily creates the room-configuration record with the
// default theme. Only a host viewer triggers it, and only after the
// config subscription has confirmed the record is absent.
func (r *Room) ensureConfig() {
	if !r.cfgLoaded || r.config != nil || r.ensured {
		return
	}

	if _, err := r.ps.store.EnsureRoom(r.code, themes.DefaultId()); err != nil {
		r.log.Printf("ensure room %q: %v", r.code, err)
		return
	}
	r.ensured = true
}

func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client
	if c.role != types.RoleGuest {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	text, ok := board.ValidWish(msg.Publish.Text)
	if !ok {
		// Whitespace-only drafts are silently ignored.
		return
	}

	if !c.composer.CanSend() {
		// A send is still pending acknowledgment; the UI disables
		// resubmission, so treat a duplicate as a no-op.
		return
	}

	if _, err := r.ps.store.CreateMessage(r.code, text); err != nil {
		// The guest keeps their draft and may retry manually.
		r.log.Printf("create message in %q: %v", r.code, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.composer.MarkSent()
	r.ps.stats.Incr(stats.WishesSubmitted)
	c.queueMessage(NoErrAccepted(msg.Id))
	r.sendSnapshot(c)

	// Re-project the guest's view once the acknowledgment window
	// clears, so a quiet room does not leave the sent state showing
	// forever.
	time.AfterFunc(board.SentAckWindow, func() {
		select {
		case r.refreshChan <- c:
		default:
			r.log.Printf("refresh channel full on room %q", r.code)
		}
	})
}

// handleRefresh pushes a fresh snapshot to one client if it is still
// in the room.
func (r *Room) handleRefresh(c *Client) {
	r.clientLock.RLock()
	_, ok := r.clients[c]
	r.clientLock.RUnlock()

	if !ok {
		return
	}
	r.sendSnapshot(c)
}

func (r *Room) handlePop(msg *ClientMessage) {
	c := msg.client
	if c.role != types.RoleHost {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	id := msg.Pop.MessageId
	if !r.knownMessage(id) {
		r.log.Printf("pop for unknown message %q in room %q", id, r.code)
		return
	}

	// First pop wins; repeats while popping or settled are no-ops.
	if !r.pops.Begin(id) {
		return
	}

	r.broadcastToHosts(&ServerMessage{
		Event: &Event{Popping: &PoppingEvent{MessageId: id}},
	})

	// Fire and forget: the pop animation is optimistic and is not
	// rolled back if the write fails. The next authoritative snapshot
	// corrects the projection.
	go func() {
		if err := r.ps.store.PopMessage(id); err != nil {
			r.log.Printf("pop message %q: %v", id, err)
		}
	}()

	time.AfterFunc(popSettleDelay, func() {
		select {
		case r.settleChan <- id:
		default:
			r.log.Printf("settle channel full on room %q", r.code)
		}
	})
}

func (r *Room) handleSettle(id string) {
	count := r.pops.Settle(id)
	if count < 0 {
		return
	}

	r.ps.stats.Incr(stats.BalloonsPopped)

	settled := &SettledEvent{
		MessageId: id,
		Layout:    board.NoteLayoutFor(id),
	}
	for _, m := range r.messages {
		if m.Id == id {
			settled.Text = m.Text
			break
		}
	}

	r.broadcastToHosts(&ServerMessage{Event: &Event{Settled: settled}})

	if board.Milestone(count) {
		r.ps.stats.Incr(stats.MilestonesReached)
		r.broadcastToHosts(&ServerMessage{
			Event: &Event{Confetti: &ConfettiEvent{PoppedCount: count}},
		})
	}
}

func (r *Room) handleTheme(msg *ClientMessage) {
	c := msg.client
	if c.role != types.RoleHost {
		// Guests have no mutation path for room configuration.
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	themeId := msg.Theme.ThemeId
	if !themes.Valid(themeId) {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	err := r.ps.store.SetTheme(r.code, themeId)
	if err == store.ErrNotFound {
		_, err = r.ps.store.EnsureRoom(r.code, themeId)
	}
	if err != nil {
		r.log.Printf("set theme on %q: %v", r.code, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	// Propagation to all viewers happens through the room-config
	// subscription, not here.
	c.queueMessage(NoErrOK(msg.Id))
}

func (r *Room) handleMessagesSnapshot(msgs []types.Message) {
	r.messages = msgs
	r.msgsLoaded = true

	// Fold the authoritative popped flags into the local animation
	// state without re-triggering animations.
	r.pops.Reconcile(msgs)

	active, _ := board.Partition(msgs)
	board.AssignMotions(active, r.motions, r.rng, len(r.theme().BalloonPalette))

	r.broadcastSnapshots()
}

func (r *Room) handleRoomSnapshot(cfg *types.Room) {
	r.config = cfg
	r.cfgLoaded = true

	if cfg == nil && r.hasHost() {
		r.ensureConfig()
	}

	r.broadcastSnapshots()
}

// theme resolves the active theme from the live config projection,
// falling back to the catalog default while the record is absent.
func (r *Room) theme() themes.Theme {
	if r.config != nil {
		return themes.Lookup(r.config.ThemeId)
	}
	return themes.Lookup("")
}

// sendSnapshot pushes the current role-projected view to one client.
// A slice that has not loaded yet is simply not sent; the client stays
// in its loading state.
func (r *Room) sendSnapshot(c *Client) {
	switch c.role {
	case types.RoleHost:
		if !r.msgsLoaded {
			return
		}
		view := board.ProjectHost(r.messages, r.theme(), r.motions)
		c.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Snapshot:    &Snapshot{RoomId: r.code, Host: &view},
		})
	case types.RoleGuest:
		if !r.cfgLoaded {
			return
		}
		c.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Snapshot: &Snapshot{
				RoomId: r.code,
				Guest: &board.GuestView{
					Theme:       r.theme(),
					SentPending: c.composer.Pending(),
				},
			},
		})
	}
}

func (r *Room) broadcastSnapshots() {
	r.clientLock.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.clientLock.RUnlock()

	for _, c := range clients {
		r.sendSnapshot(c)
	}
}

func (r *Room) broadcastToHosts(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		if c.role != types.RoleHost {
			continue
		}
		c.queueMessage(msg)
	}
}

func (r *Room) knownMessage(id string) bool {
	for _, m := range r.messages {
		if m.Id == id {
			return true
		}
	}
	return false
}

func (r *Room) hasHost() bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		if c.role == types.RoleHost {
			return true
		}
	}
	return false
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()
	r.clients[c] = struct{}{}
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	r.log.Printf("removing %s client from room %q", c.role, r.code)
	delete(r.clients, c)

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.code)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.code)
	select {
	case r.ps.unloadRoomChan <- r.code:
	default:
		// Try again on the next timeout.
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.code)

	// Deterministic teardown: no further snapshots are delivered after
	// this point.
	r.msgSub.Unsubscribe()
	r.roomSub.Unsubscribe()

	r.clientLock.Lock()
	for c := range r.clients {
		c.stopClient()
	}
	r.clients = make(map[*Client]struct{})
	r.clientLock.Unlock()

	if e.done != nil {
		close(e.done)
	}
}
