package game

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jason-s-yu/clickrace/internal/models"
)

const (
	// RoomTTL is how long a room may live regardless of activity.
	RoomTTL = time.Hour

	// SweepInterval is how often the reaper pass runs.
	SweepInterval = 5 * time.Minute
)

// RoomStore is the process-wide registry of active rooms. It owns the reaper
// goroutine that evicts dead connections and expired rooms for the lifetime
// of the process; Stop exists for tests.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room

	ttl      time.Duration
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRoomStore builds a registry with the production TTL and sweep cadence
// and launches its reaper.
func NewRoomStore() *RoomStore {
	return NewRoomStoreWithConfig(RoomTTL, SweepInterval)
}

// NewRoomStoreWithConfig is NewRoomStore with the timings exposed, for tests.
func NewRoomStoreWithConfig(ttl, interval time.Duration) *RoomStore {
	s := &RoomStore{
		rooms:    make(map[string]*Room),
		ttl:      ttl,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.reaperLoop()
	return s
}

// CreateRoom allocates a fresh code, a room in the Lobby phase, and its host
// player. Creation cannot fail; code collisions are retried against the map
// while it is locked.
func (s *RoomStore) CreateRoom(hostName string, conn *models.PlayerConn) (*Room, *models.Player) {
	s.mu.Lock()
	code := NewRoomCode()
	for s.rooms[code] != nil {
		code = NewRoomCode()
	}
	room := NewRoom(code)
	room.OnEmpty = func(c string) { s.Delete(c) }
	s.rooms[code] = room
	s.mu.Unlock()

	// The room is not yet reachable by anyone else's messages, but Join
	// takes the room lock anyway; an empty lobby rejects nothing.
	host, _ := room.Join(hostName, conn)

	log.WithFields(log.Fields{"room": code, "host": host.ID}).Info("room created")
	return room, host
}

// Get looks up a room by code, case-insensitively.
func (s *RoomStore) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[strings.ToUpper(code)]
	return r, ok
}

// Delete removes a room from the registry and cancels its scheduled work.
func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if ok {
		delete(s.rooms, code)
	}
	s.mu.Unlock()

	if ok {
		room.Close()
		log.WithField("room", code).Info("room deleted")
	}
}

// Len reports how many rooms are live.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Sweep runs one reaper pass: every room drops its confirmed-closed
// connections, then rooms with nobody connected or past their TTL are
// deleted. Exported so tests can trigger a pass directly.
func (s *RoomStore) Sweep() {
	now := time.Now()

	s.mu.Lock()
	snapshot := make(map[string]*Room, len(s.rooms))
	for code, room := range s.rooms {
		snapshot[code] = room
	}
	s.mu.Unlock()

	for code, room := range snapshot {
		if room.sweep(now, s.ttl) {
			s.Delete(code)
		}
	}
}

func (s *RoomStore) reaperLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Stop shuts the reaper down and waits for it. Idempotent.
func (s *RoomStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
