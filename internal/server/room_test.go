package server

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wishpop/wishpop/internal/board"
	"github.com/wishpop/wishpop/internal/stats"
	"github.com/wishpop/wishpop/internal/store"
	"github.com/wishpop/wishpop/internal/testutil"
	"github.com/wishpop/wishpop/internal/themes"
	"github.com/wishpop/wishpop/internal/types"
)

// newTestPartyServer creates a PartyServer for testing purposes.
func newTestPartyServer(t *testing.T, st store.Store, su *stats.MockStatsUpdater) *PartyServer {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Times(5)

	ps, err := NewPartyServer(testutil.TestLogger(t), st, su)
	if err != nil {
		t.Fatalf("failed to create test PartyServer: %v", err)
	}
	return ps
}

// newTestRoom builds a room without running its goroutine so handlers
// can be driven directly.
func newTestRoom(t *testing.T, ps *PartyServer) *Room {
	t.Helper()
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	return &Room{
		code:       "PARTY2026",
		ps:         ps,
		log:        testutil.TestLogger(t),
		joinChan:    make(chan *Client, 16),
		leaveChan:   make(chan *Client, 16),
		actionChan:  make(chan *ClientMessage, 16),
		settleChan:  make(chan string, 64),
		refreshChan: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		motions:    make(map[string]board.BalloonMotion),
		pops:       board.NewPopTracker(),
		rng:        rand.New(rand.NewSource(1)),
		killTimer:  timer,
		exit:       make(chan exitReq),
	}
}

func newTestClient(t *testing.T, role types.Role, clock func() time.Time) *Client {
	t.Helper()
	return &Client{
		log:      testutil.TestLogger(t),
		roomCode: "PARTY2026",
		role:     role,
		composer: board.NewComposer(clock),
		send:     make(chan *ServerMessage, 256),
		stop:     make(chan struct{}),
	}
}

// drain empties a client's send queue.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestHandlePublish(t *testing.T) {
	t.Run("stores the trimmed wish", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		st.On("CreateMessage", "PARTY2026", "Happy Birthday!").
			Return(types.Message{Id: "m1", RoomCode: "PARTY2026", Text: "Happy Birthday!"}, nil).Once()
		su.On("Incr", stats.WishesSubmitted).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, su))
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(guest)

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Publish:     &Publish{Text: "  Happy Birthday! "},
			client:      guest,
		})

		msgs := drain(guest)
		require.NotEmpty(t, msgs)
		assert.Equal(t, 202, msgs[0].Response.ResponseCode, "expected accepted response")
		assert.False(t, guest.composer.CanSend(), "acknowledgment window must be open")
	})

	t.Run("whitespace-only draft is a no-op", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(guest)

		room.handlePublish(&ClientMessage{
			Publish: &Publish{Text: " \t\n "},
			client:  guest,
		})

		assert.Empty(t, drain(guest), "no response, no error, no create request")
	})

	t.Run("resubmission during the ack window is a no-op", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		st.On("CreateMessage", "PARTY2026", "hi").
			Return(types.Message{Id: "m1"}, nil).Once()
		su.On("Incr", stats.WishesSubmitted).Once()

		now := time.Now()
		guest := newTestClient(t, types.RoleGuest, func() time.Time { return now })
		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.addClient(guest)

		msg := &ClientMessage{Publish: &Publish{Text: "hi"}, client: guest}
		room.handlePublish(msg)
		room.handlePublish(msg)

		st.AssertNumberOfCalls(t, "CreateMessage", 1)

		// The window clears on its own; a later submit goes through.
		st.On("CreateMessage", "PARTY2026", "hi").
			Return(types.Message{Id: "m2"}, nil).Once()
		su.On("Incr", stats.WishesSubmitted).Once()
		now = now.Add(board.SentAckWindow)
		room.handlePublish(msg)
		st.AssertNumberOfCalls(t, "CreateMessage", 2)
	})

	t.Run("create failure keeps the guest's draft", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		st.On("CreateMessage", "PARTY2026", "hi").
			Return(types.Message{}, fmt.Errorf("write rejected")).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(guest)

		room.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 3},
			Publish:     &Publish{Text: "hi"},
			client:      guest,
		})

		msgs := drain(guest)
		require.Len(t, msgs, 1)
		assert.Equal(t, 500, msgs[0].Response.ResponseCode)
		assert.True(t, guest.composer.CanSend(), "no ack window after a failed create, so the guest may retry")
	})

	t.Run("guest view clears the sent state after the window", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()

		st.On("CreateMessage", "PARTY2026", "hi").
			Return(types.Message{Id: "m1"}, nil).Once()

		now := time.Now()
		guest := newTestClient(t, types.RoleGuest, func() time.Time { return now })
		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.cfgLoaded = true
		room.addClient(guest)

		room.handlePublish(&ClientMessage{Publish: &Publish{Text: "hi"}, client: guest})

		var snaps []*Snapshot
		for _, msg := range drain(guest) {
			if msg.Snapshot != nil {
				snaps = append(snaps, msg.Snapshot)
			}
		}
		require.NotEmpty(t, snaps)
		require.NotNil(t, snaps[len(snaps)-1].Guest)
		assert.True(t, snaps[len(snaps)-1].Guest.SentPending)

		// Once the window lapses, the scheduled refresh re-projects the
		// guest's view without the sent flag.
		now = now.Add(board.SentAckWindow)
		room.handleRefresh(guest)

		snap := drain(guest)
		require.Len(t, snap, 1)
		require.NotNil(t, snap[0].Snapshot)
		require.NotNil(t, snap[0].Snapshot.Guest)
		assert.False(t, snap[0].Snapshot.Guest.SentPending)

		// A refresh for a client that already left is dropped.
		room.removeClient(guest)
		room.handleRefresh(guest)
		assert.Empty(t, drain(guest))
	})

	t.Run("host has no composer path", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handlePublish(&ClientMessage{Publish: &Publish{Text: "hi"}, client: host})

		msgs := drain(host)
		require.Len(t, msgs, 1)
		assert.Equal(t, 403, msgs[0].Response.ResponseCode)
	})
}

func TestHandlePop(t *testing.T) {
	t.Run("double pop issues exactly one update", func(t *testing.T) {
		st := &store.MockStore{}
		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()

		popCalled := make(chan struct{}, 1)
		st.On("PopMessage", "m1").Run(func(args mock.Arguments) {
			popCalled <- struct{}{}
		}).Return(nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.messages = []types.Message{{Id: "m1", RoomCode: "PARTY2026", Text: "hello"}}
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		popMsg := &ClientMessage{Pop: &Pop{MessageId: "m1"}, client: host}
		room.handlePop(popMsg)
		room.handlePop(popMsg)

		select {
		case <-popCalled:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for remote pop update")
		}
		st.AssertNumberOfCalls(t, "PopMessage", 1)

		// Exactly one local popping transition.
		var popping int
		for _, msg := range drain(host) {
			if msg.Event != nil && msg.Event.Popping != nil {
				popping++
			}
		}
		assert.Equal(t, 1, popping, "expected a single popping event")
	})

	t.Run("settle reveals the note after the delay", func(t *testing.T) {
		st := &store.MockStore{}
		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		st.On("PopMessage", "m1").Return(nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.messages = []types.Message{{Id: "m1", RoomCode: "PARTY2026", Text: "hello"}}
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: "m1"}, client: host})

		select {
		case id := <-room.settleChan:
			assert.Equal(t, "m1", id)
			room.handleSettle(id)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for settle")
		}

		var settled *SettledEvent
		for _, msg := range drain(host) {
			if msg.Event != nil && msg.Event.Settled != nil {
				settled = msg.Event.Settled
			}
		}
		require.NotNil(t, settled)
		assert.Equal(t, "m1", settled.MessageId)
		assert.Equal(t, "hello", settled.Text)
		assert.Equal(t, board.NoteLayoutFor("m1"), settled.Layout)
	})

	t.Run("update failure does not roll back the animation", func(t *testing.T) {
		st := &store.MockStore{}
		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()

		popCalled := make(chan struct{}, 1)
		st.On("PopMessage", "m1").Run(func(args mock.Arguments) {
			popCalled <- struct{}{}
		}).Return(fmt.Errorf("update rejected")).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.messages = []types.Message{{Id: "m1", Text: "hello"}}
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: "m1"}, client: host})

		select {
		case <-popCalled:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for remote pop update")
		}

		// The local animation still completes.
		select {
		case id := <-room.settleChan:
			room.handleSettle(id)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for settle")
		}
		assert.Equal(t, board.PhaseSettled, room.pops.Phase("m1"))
	})

	t.Run("every host display animates, including the popper's", func(t *testing.T) {
		st := &store.MockStore{}
		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		st.On("PopMessage", "m1").Return(nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.messages = []types.Message{{Id: "m1", Text: "hello"}}
		popper := newTestClient(t, types.RoleHost, nil)
		other := newTestClient(t, types.RoleHost, nil)
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(popper)
		room.addClient(other)
		room.addClient(guest)

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: "m1"}, client: popper})

		for _, c := range []*Client{popper, other} {
			var popping int
			for _, msg := range drain(c) {
				if msg.Event != nil && msg.Event.Popping != nil {
					popping++
				}
			}
			assert.Equal(t, 1, popping, "each host display gets the popping event")
		}
		assert.Empty(t, drain(guest), "guests get no animation events")
	})

	t.Run("guest cannot pop", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		room.messages = []types.Message{{Id: "m1"}}
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(guest)

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: "m1"}, client: guest})

		msgs := drain(guest)
		require.Len(t, msgs, 1)
		assert.Equal(t, 403, msgs[0].Response.ResponseCode)
	})

	t.Run("unknown message id is ignored", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: "ghost"}, client: host})
		assert.Empty(t, drain(host))
	})
}

func TestMilestoneConfetti(t *testing.T) {
	st := &store.MockStore{}
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	st.On("PopMessage", mock.Anything).Return(nil)

	room := newTestRoom(t, newTestPartyServer(t, st, su))
	host := newTestClient(t, types.RoleHost, nil)
	room.addClient(host)

	var confetti []int
	for i := 1; i <= 20; i++ {
		id := fmt.Sprintf("m%d", i)
		room.messages = append(room.messages, types.Message{Id: id, Text: "wish"})

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: id}, client: host})
		room.handleSettle(id)

		for _, msg := range drain(host) {
			if msg.Event != nil && msg.Event.Confetti != nil {
				confetti = append(confetti, msg.Event.Confetti.PoppedCount)
			}
		}
	}

	assert.Equal(t, []int{10, 20}, confetti, "confetti fires exactly at counts 10 and 20")
}

func TestHandleTheme(t *testing.T) {
	t.Run("host selects a catalog theme", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)
		st.On("SetTheme", "PARTY2026", "gold").Return(nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handleTheme(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Theme:       &ThemeChange{ThemeId: "gold"},
			client:      host,
		})

		msgs := drain(host)
		require.Len(t, msgs, 1)
		assert.Equal(t, 200, msgs[0].Response.ResponseCode)
	})

	t.Run("guests have no mutation path", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(guest)

		room.handleTheme(&ClientMessage{Theme: &ThemeChange{ThemeId: "gold"}, client: guest})

		msgs := drain(guest)
		require.Len(t, msgs, 1)
		assert.Equal(t, 403, msgs[0].Response.ResponseCode)
	})

	t.Run("unknown theme id is rejected", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handleTheme(&ClientMessage{
			BaseMessage: BaseMessage{Id: 2},
			Theme:       &ThemeChange{ThemeId: "vaporwave"},
			client:      host,
		})

		msgs := drain(host)
		require.Len(t, msgs, 1)
		assert.Equal(t, 400, msgs[0].Response.ResponseCode)
	})

	t.Run("theme write lazily creates the room record", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)
		st.On("SetTheme", "PARTY2026", "gold").Return(store.ErrNotFound).Once()
		st.On("EnsureRoom", "PARTY2026", "gold").Return(types.Room{Id: "PARTY2026", ThemeId: "gold"}, nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handleTheme(&ClientMessage{Theme: &ThemeChange{ThemeId: "gold"}, client: host})
	})
}

func TestHandleRoomSnapshot(t *testing.T) {
	t.Run("host presence lazily initializes the config", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)
		st.On("EnsureRoom", "PARTY2026", themes.DefaultId()).
			Return(types.Room{Id: "PARTY2026", ThemeId: themes.DefaultId()}, nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handleRoomSnapshot(nil)
		// A second absent snapshot must not create the record twice.
		room.handleRoomSnapshot(nil)
	})

	t.Run("guests never initialize the config", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(guest)

		room.handleRoomSnapshot(nil)
	})

	t.Run("theme change reaches every viewer", func(t *testing.T) {
		st := &store.MockStore{}
		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		room.messages = nil
		room.msgsLoaded = true

		host := newTestClient(t, types.RoleHost, nil)
		guest := newTestClient(t, types.RoleGuest, nil)
		room.addClient(host)
		room.addClient(guest)

		room.handleRoomSnapshot(&types.Room{Id: "PARTY2026", ThemeId: "gold"})

		var hostSnap, guestSnap *Snapshot
		for _, msg := range drain(host) {
			if msg.Snapshot != nil {
				hostSnap = msg.Snapshot
			}
		}
		for _, msg := range drain(guest) {
			if msg.Snapshot != nil {
				guestSnap = msg.Snapshot
			}
		}

		require.NotNil(t, hostSnap)
		require.NotNil(t, hostSnap.Host)
		assert.Equal(t, "gold", hostSnap.Host.Theme.Id)
		require.NotNil(t, guestSnap)
		require.NotNil(t, guestSnap.Guest)
		assert.Equal(t, "gold", guestSnap.Guest.Theme.Id)
	})
}

func TestHandleMessagesSnapshot(t *testing.T) {
	t.Run("projects a strict partition", func(t *testing.T) {
		st := &store.MockStore{}
		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handleMessagesSnapshot([]types.Message{
			{Id: "a", Text: "one"},
			{Id: "b", Text: "two", Popped: true},
			{Id: "c", Text: "three"},
		})

		var snap *Snapshot
		for _, msg := range drain(host) {
			if msg.Snapshot != nil {
				snap = msg.Snapshot
			}
		}
		require.NotNil(t, snap)
		require.NotNil(t, snap.Host)
		assert.Len(t, snap.Host.Balloons, 2)
		assert.Len(t, snap.Host.Notes, 1)
		assert.Equal(t, "b", snap.Host.Notes[0].Message.Id)
	})

	t.Run("balloon motion is stable across unrelated changes", func(t *testing.T) {
		st := &store.MockStore{}
		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))

		room.handleMessagesSnapshot([]types.Message{{Id: "a"}})
		motion := room.motions["a"]

		room.handleMessagesSnapshot([]types.Message{{Id: "a"}, {Id: "b"}})
		assert.Equal(t, motion, room.motions["a"], "existing balloon keeps its motion parameters")
	})

	t.Run("confirming snapshot does not re-animate a local pop", func(t *testing.T) {
		st := &store.MockStore{}
		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		st.On("PopMessage", "a").Return(nil).Once()

		room := newTestRoom(t, newTestPartyServer(t, st, su))
		room.messages = []types.Message{{Id: "a", Text: "one"}}
		host := newTestClient(t, types.RoleHost, nil)
		room.addClient(host)

		room.handlePop(&ClientMessage{Pop: &Pop{MessageId: "a"}, client: host})
		drain(host)

		// The store confirms the write before the settle timer fires.
		room.handleMessagesSnapshot([]types.Message{{Id: "a", Text: "one", Popped: true}})

		for _, msg := range drain(host) {
			assert.Nil(t, msg.Event, "snapshot handling must not emit animation events")
		}
		assert.Equal(t, board.PhasePopping, room.pops.Phase("a"))
	})
}

func TestHandleJoin(t *testing.T) {
	t.Run("host gets the current board immediately when loaded", func(t *testing.T) {
		st := &store.MockStore{}
		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		room.messages = []types.Message{{Id: "a"}}
		room.msgsLoaded = true
		room.cfgLoaded = true
		room.config = &types.Room{Id: "PARTY2026", ThemeId: "gold"}

		host := newTestClient(t, types.RoleHost, nil)
		room.handleJoin(host)

		msgs := drain(host)
		require.NotEmpty(t, msgs)
		assert.Equal(t, 200, msgs[0].Response.ResponseCode)

		var snap *Snapshot
		for _, msg := range msgs {
			if msg.Snapshot != nil {
				snap = msg.Snapshot
			}
		}
		require.NotNil(t, snap)
		require.NotNil(t, snap.Host)
		assert.Len(t, snap.Host.Balloons, 1)
	})

	t.Run("joining before the first snapshot stays loading", func(t *testing.T) {
		st := &store.MockStore{}
		defer st.AssertExpectations(t)

		room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
		host := newTestClient(t, types.RoleHost, nil)
		room.handleJoin(host)

		for _, msg := range drain(host) {
			assert.Nil(t, msg.Snapshot, "no snapshot until the subscription delivers")
		}
	})
}

func TestRemoveClientStartsKillTimer(t *testing.T) {
	st := &store.MockStore{}
	room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))
	c := newTestClient(t, types.RoleGuest, nil)
	room.addClient(c)

	room.removeClient(c)
	assert.Empty(t, room.clients)
	assert.True(t, room.killTimer.Stop(), "kill timer must be running once the room is empty")
}

func TestHandleRoomTimeout(t *testing.T) {
	st := &store.MockStore{}
	room := newTestRoom(t, newTestPartyServer(t, st, &stats.MockStatsUpdater{}))

	room.handleRoomTimeout()
	select {
	case code := <-room.ps.unloadRoomChan:
		assert.Equal(t, "PARTY2026", code)
	default:
		t.Error("handleRoomTimeout did not request unload")
	}
}

func TestHandleRoomExit(t *testing.T) {
	memStore := store.NewMemoryStore()
	su := &stats.MockStatsUpdater{}
	ps := newTestPartyServer(t, memStore, su)

	room := newRoom("PARTY2026", ps)
	room.log = testutil.TestLogger(t)
	room.killTimer = time.NewTimer(time.Hour)

	c := newTestClient(t, types.RoleHost, nil)
	room.addClient(c)

	done := make(chan struct{})
	room.handleRoomExit(exitReq{done: done})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout: handleRoomExit did not signal done")
	}

	select {
	case <-c.stop:
	case <-time.After(time.Second):
		t.Fatal("timeout: client was not stopped on room exit")
	}

	// Subscriptions are torn down: a write after exit is never
	// delivered, and the channel is closed.
	_, err := memStore.CreateMessage("PARTY2026", "late wish")
	require.NoError(t, err)

	var sawLate bool
	for msgs := range room.msgSub.C {
		for _, m := range msgs {
			if m.Text == "late wish" {
				sawLate = true
			}
		}
	}
	assert.False(t, sawLate, "no deliveries after unsubscribe")
}
