package bot

import (
	"sync"

	"github.com/dicerobot/dicerobot/pkg/gateway"
)

type State string

const (
	StateStarted State = "started"
	StateHolding State = "holding"
	StateRunning State = "running"
)

// Status is the shared view of the bot account. Methods are safe for
// concurrent use.
type Status struct {
	mu       sync.RWMutex
	state    State
	id       int64
	nickname string
	friends  []gateway.Friend
	groups   []gateway.Group
}

func NewStatus() *Status {
	return &Status{state: StateStarted}
}

func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Status) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Status) Running() bool {
	return s.State() == StateRunning
}

func (s *Status) Identity() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.nickname
}

func (s *Status) setIdentity(id int64, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.nickname = nickname
}

func (s *Status) Friends() []gateway.Friend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]gateway.Friend(nil), s.friends...)
}

func (s *Status) Groups() []gateway.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]gateway.Group(nil), s.groups...)
}

func (s *Status) setFriends(friends []gateway.Friend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = friends
}

func (s *Status) setGroups(groups []gateway.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
}

// Snapshot is a serializable copy of Status.
type Snapshot struct {
	State    State  `json:"state"`
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Friends  int    `json:"friend_count"`
	Groups   int    `json:"group_count"`
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:    s.state,
		ID:       s.id,
		Nickname: s.nickname,
		Friends:  len(s.friends),
		Groups:   len(s.groups),
	}
}
