package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/arcaderooms/internal/dependencies/mocks"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/testutil"
)

// fakePeer records everything the hub sends it
type fakePeer struct {
	id string

	mu     sync.Mutex
	msgs   [][]byte
	full   bool
	closed bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(message []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full || p.closed {
		return false
	}
	p.msgs = append(p.msgs, message)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) envelopes() []model.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Envelope, 0, len(p.msgs))
	for _, m := range p.msgs {
		var env model.Envelope
		if err := json.Unmarshal(m, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (p *fakePeer) events() []model.EventType {
	var types []model.EventType
	for _, env := range p.envelopes() {
		types = append(types, env.Event)
	}
	return types
}

func (p *fakePeer) last() model.Envelope {
	envs := p.envelopes()
	return envs[len(envs)-1]
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = nil
}

type HubSuite struct {
	suite.Suite
	clock *mocks.MockClock
	hub   *Hub
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.hub = NewHub(s.clock, 4, testutil.NopLogger())
}

func (s *HubSuite) join(p *fakePeer, code model.RoomCode, address string, isHost bool) int {
	return s.hub.Join(p, model.JoinRoomPayload{RoomCode: code, Address: address, IsHost: isHost})
}

func decode[T any](s *HubSuite, env model.Envelope) T {
	var v T
	s.Require().NoError(json.Unmarshal(env.Data, &v))
	return v
}

func (s *HubSuite) TestJoinSendsRoomStatusAndPlayerJoined() {
	host := newFakePeer("s1")
	guest := newFakePeer("s2")

	s.Equal(1, s.join(host, "ABC1", "0xhost", true))
	s.Equal([]model.EventType{model.EventRoomStatus}, host.events())
	status := decode[model.RoomStatusPayload](s, host.last())
	s.Equal(1, status.Count)

	s.Equal(2, s.join(guest, "abc1", "0xguest", false))
	s.Equal([]model.EventType{model.EventRoomStatus}, guest.events())
	s.Equal(2, decode[model.RoomStatusPayload](s, guest.last()).Count)

	s.Equal([]model.EventType{model.EventRoomStatus, model.EventPlayerJoined}, host.events())
	joined := decode[model.PlayerJoinedPayload](s, host.last())
	s.Equal("0xguest", joined.Address)
	s.False(joined.IsHost)
	s.Equal(2, joined.Count)
}

func (s *HubSuite) TestRejoinSameRoomDoesNotAnnounceAgain() {
	host := newFakePeer("s1")
	guest := newFakePeer("s2")
	s.join(host, "ABC1", "0xhost", true)
	s.join(guest, "ABC1", "0xguest", false)
	host.reset()

	s.Equal(2, s.join(guest, "ABC1", "0xguest", false))
	s.Empty(host.events())
	s.Equal(2, s.hub.Count("ABC1"))
}

func (s *HubSuite) TestJoinOtherRoomMovesSession() {
	a := newFakePeer("s1")
	b := newFakePeer("s2")
	s.join(a, "ROOM1", "0xa", true)
	s.join(b, "ROOM1", "0xb", false)
	a.reset()

	s.join(b, "ROOM2", "0xb", true)

	s.Equal(1, s.hub.Count("ROOM1"))
	s.Equal(1, s.hub.Count("ROOM2"))
	s.Equal([]model.EventType{model.EventPlayerLeft}, a.events())
	s.Equal(1, decode[model.PlayerLeftPayload](s, a.last()).Count)
}

func (s *HubSuite) TestLeaveNotifiesPeersAndDropsEmptyRoom() {
	a := newFakePeer("s1")
	b := newFakePeer("s2")
	s.join(a, "ABC1", "0xa", true)
	s.join(b, "ABC1", "0xb", false)
	a.reset()

	s.hub.Leave(b)
	s.Equal([]model.EventType{model.EventPlayerLeft}, a.events())
	left := decode[model.PlayerLeftPayload](s, a.last())
	s.Equal("0xb", left.Address)
	s.Equal(1, left.Count)
	s.Equal(1, s.hub.RoomCount())

	s.hub.Leave(a)
	s.Equal(0, s.hub.Count("ABC1"))
	s.Equal(0, s.hub.RoomCount())
}

func (s *HubSuite) TestLeaveWithoutJoinIsNoop() {
	s.hub.Leave(newFakePeer("ghost"))
	s.Equal(0, s.hub.RoomCount())
}

func (s *HubSuite) TestRelayExcludesSender() {
	a := newFakePeer("s1")
	b := newFakePeer("s2")
	c := newFakePeer("s3")
	s.join(a, "ABC1", "0xa", true)
	s.join(b, "ABC1", "0xb", false)
	s.join(c, "OTHER", "0xc", true)
	a.reset()
	b.reset()
	c.reset()

	sent := s.hub.Relay(a, model.PlayerInputPayload{RoomCode: "ABC1", Address: "0xa", Input: json.RawMessage(`{"up":true}`)})
	s.Equal(1, sent)

	s.Empty(a.events())
	s.Empty(c.events())
	s.Equal([]model.EventType{model.EventPlayerMovement}, b.events())
	movement := decode[model.PlayerMovementPayload](s, b.last())
	s.Equal("0xa", movement.Address)
	s.JSONEq(`{"up":true}`, string(movement.Input))
	s.Equal(s.clock.Now().UnixMilli(), movement.Timestamp)
}

func (s *HubSuite) TestRelayToUnknownRoomIsNoop() {
	s.Equal(0, s.hub.Relay(newFakePeer("s1"), model.PlayerInputPayload{RoomCode: "NOPE", Address: "0xa"}))
}

func (s *HubSuite) TestFullPeerDoesNotBlockOthers() {
	a := newFakePeer("s1")
	b := newFakePeer("s2")
	c := newFakePeer("s3")
	s.join(a, "ABC1", "0xa", true)
	s.join(b, "ABC1", "0xb", false)
	s.join(c, "ABC1", "0xc", false)
	b.full = true

	s.Equal(1, s.hub.Relay(a, model.PlayerInputPayload{RoomCode: "ABC1", Address: "0xa"}))
}

func (s *HubSuite) TestBroadcastReachesEveryone() {
	a := newFakePeer("s1")
	b := newFakePeer("s2")
	s.join(a, "ABC1", "0xa", true)
	s.join(b, "ABC1", "0xb", false)

	s.Equal(2, s.hub.Broadcast("ABC1", model.EventRoomUpdated, map[string]string{"status": "playing"}))
	s.Equal(model.EventRoomUpdated, a.last().Event)
	s.Equal(model.EventRoomUpdated, b.last().Event)
}

func (s *HubSuite) TestCloseDisconnectsAll() {
	a := newFakePeer("s1")
	b := newFakePeer("s2")
	s.join(a, "ROOM1", "0xa", true)
	s.join(b, "ROOM2", "0xb", true)

	s.hub.Close()

	s.True(a.closed)
	s.True(b.closed)
	s.Equal(0, s.hub.RoomCount())
	s.hub.Leave(a)
}

func (s *HubSuite) TestConcurrentJoinLeave() {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := newFakePeer(string(rune('A' + i)))
			s.join(p, "ABC1", p.id, i == 0)
			s.hub.Relay(p, model.PlayerInputPayload{RoomCode: "ABC1", Address: p.id})
			s.hub.Leave(p)
		}(i)
	}
	wg.Wait()
	s.Equal(0, s.hub.RoomCount())
}
