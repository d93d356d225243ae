package game

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jason-s-yu/clickrace/internal/models"
)

// Phase is the lifecycle stage of a room. Ended re-enters the Lobby rules for
// joins and ready toggles; starting a new race is the only way out of it.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseStarting
	PhaseRacing
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseStarting:
		return "starting"
	case PhaseRacing:
		return "racing"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

const (
	// MaxPlayers bounds the roster, humans and bots combined.
	MaxPlayers = 8

	// FinishThreshold is the click count that completes the race.
	FinishThreshold = 300

	// MinReadyToStart is the minimum number of ready players for startGame.
	MinReadyToStart = 2

	// CountdownSeconds is the pre-race countdown length.
	CountdownSeconds = 3

	defaultCountdownTick = time.Second
	defaultGracePeriod   = 5 * time.Second

	defaultPlayerName = "Player"
	humanAvatar       = "\U0001F3C3" // 🏃
)

// playerColors is assigned deterministically by join order.
var playerColors = [...]string{
	"#2ecc71", "#e74c3c", "#3498db", "#9b59b6",
	"#f39c12", "#1abc9c", "#e91e63", "#00bcd4",
}

// Room holds the entire state for a single race session in memory. All
// mutation funnels through its mutex; timer callbacks (countdown ticks, bot
// clicks, the grace deadline) re-validate phase and raceToken under the lock
// before acting, so a torn-down race cannot resurrect state.
type Room struct {
	Code      string
	CreatedAt time.Time

	mu        sync.Mutex
	players   []*models.Player
	phase     Phase
	startTime time.Time
	closed    bool

	// raceToken is bumped whenever a race ends or the room closes. Pending
	// timer fires carry the token they were scheduled under and abort on
	// mismatch.
	raceToken      uint64
	countdownTimer *time.Timer
	graceTimer     *time.Timer

	countdownTick time.Duration
	gracePeriod   time.Duration

	// OnEmpty is invoked, outside the room lock, when the last player leaves.
	// The registry assigns it to delete the room.
	OnEmpty func(code string)
}

// NewRoom allocates an empty room in the Lobby phase.
func NewRoom(code string) *Room {
	return &Room{
		Code:          code,
		CreatedAt:     time.Now(),
		phase:         PhaseLobby,
		countdownTick: defaultCountdownTick,
		gracePeriod:   defaultGracePeriod,
	}
}

func displayName(name string) string {
	if name == "" {
		return defaultPlayerName
	}
	return name
}

// Join appends a human player to the roster. The first player to join an
// empty room becomes host. The caller is responsible for sending the join
// reply before broadcasting the new roster.
func (r *Room) Join(name string, conn *models.PlayerConn) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomNotFound
	}
	if r.phase == PhaseStarting || r.phase == PhaseRacing {
		return nil, ErrGameInProgress
	}
	if len(r.players) >= MaxPlayers {
		return nil, ErrRoomFull
	}

	p := &models.Player{
		ID:     NewPlayerID(),
		Name:   displayName(name),
		Avatar: humanAvatar,
		Color:  playerColors[len(r.players)%len(playerColors)],
		IsHost: len(r.players) == 0,
		Conn:   conn,
	}
	r.players = append(r.players, p)
	return p, nil
}

// ToggleReady sets a player's ready flag and broadcasts the roster. There is
// deliberately no phase guard: readiness can be toggled mid-race with no
// effect beyond display, matching the original protocol.
func (r *Room) ToggleReady(playerID string, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findPlayer(playerID)
	if p == nil {
		return
	}
	p.Ready = ready
	r.broadcastRoster()
}

// AddBot seats the next unused bot archetype. Host-only; ErrNotHost and
// ErrBotsExhausted are dropped silently by the session layer while
// ErrRoomFull is reported back to the requester.
func (r *Room) AddBot(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := r.findPlayer(requesterID)
	if req == nil || !req.IsHost {
		return ErrNotHost
	}
	if len(r.players) >= MaxPlayers {
		return ErrRoomFull
	}

	idx := 0
	for _, p := range r.players {
		if p.IsAI {
			idx++
		}
	}
	if idx >= len(botProfiles) {
		return ErrBotsExhausted
	}

	prof := botProfiles[idx]
	bot := &models.Player{
		ID:     NewPlayerID(),
		Name:   prof.Name,
		Avatar: prof.Avatar,
		Color:  prof.Color,
		IsAI:   true,
		Ready:  true, // bots are always ready
	}
	r.players = append(r.players, bot)
	r.broadcastRoster()
	return nil
}

// RemoveBots removes every bot player from the room. Host-only; all-or-nothing
// removal is the contract, there is no per-bot removal.
func (r *Room) RemoveBots(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := r.findPlayer(requesterID)
	if req == nil || !req.IsHost {
		return ErrNotHost
	}

	kept := r.players[:0]
	for _, p := range r.players {
		if !p.IsAI {
			kept = append(kept, p)
		}
	}
	r.players = kept
	r.broadcastRoster()
	return nil
}

// Start transitions Lobby/Ended into Starting, resets all race state, and
// kicks off the countdown chain. Racing begins when the chain reaches zero.
func (r *Room) Start(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := r.findPlayer(requesterID)
	if req == nil || !req.IsHost {
		return ErrNotHost
	}
	if r.phase == PhaseStarting || r.phase == PhaseRacing {
		return ErrGameInProgress
	}

	ready := 0
	for _, p := range r.players {
		if p.Ready {
			ready++
		}
	}
	if ready < MinReadyToStart {
		return ErrNotEnoughReady
	}

	for _, p := range r.players {
		p.Clicks = 0
		p.Finished = false
		p.FinishTime = 0
	}
	r.phase = PhaseStarting
	r.broadcast(Event{Type: EventGameStarting, Countdown: CountdownSeconds}, nil)
	r.scheduleCountdown(CountdownSeconds-1, r.raceToken)

	log.WithFields(log.Fields{"room": r.Code, "players": len(r.players)}).Info("race starting")
	return nil
}

// scheduleCountdown chains one-second ticks down to zero, then begins the
// race. Assumes the lock is held; each fire re-validates under the lock.
func (r *Room) scheduleCountdown(value int, token uint64) {
	r.countdownTimer = time.AfterFunc(r.countdownTick, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || token != r.raceToken || r.phase != PhaseStarting {
			return // stale tick, the race was torn down under us
		}
		if value > 0 {
			r.broadcast(Event{Type: EventCountdown, Value: value}, nil)
			r.scheduleCountdown(value-1, token)
			return
		}
		r.beginRace()
	})
}

// beginRace flips the room into Racing, stamps startTime, and launches every
// bot's click loop. Assumes the lock is held.
func (r *Room) beginRace() {
	r.phase = PhaseRacing
	r.startTime = time.Now()
	r.broadcast(Event{Type: EventGameStarted, StartTime: r.startTime.UnixMilli()}, nil)

	for _, p := range r.players {
		if p.IsAI {
			r.scheduleBotClick(p.ID, r.raceToken)
		}
	}
}

// Click records a human click. No-op unless the race is running and the
// player hasn't finished. The acting connection is excluded from the
// incremental echo; it already knows its own count.
func (r *Room) Click(playerID string, nitro bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseRacing {
		return
	}
	p := r.findPlayer(playerID)
	if p == nil || p.Finished {
		return
	}

	inc := 1
	if nitro {
		inc = 2
	}
	r.applyClicks(p, inc, p.Conn)
}

// Nitro broadcasts the cosmetic nitro flare. It does not touch the score.
func (r *Room) Nitro(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseRacing {
		return
	}
	if r.findPlayer(playerID) == nil {
		return
	}
	r.broadcast(Event{Type: EventPlayerNitro, PlayerID: playerID}, nil)
}

// applyClicks increments a player's count and broadcasts the consequence:
// playerFinished to everyone on crossing the threshold, otherwise an
// incremental playerClick skipping exclude. Assumes the lock is held.
func (r *Room) applyClicks(p *models.Player, inc int, exclude *models.PlayerConn) {
	p.Clicks += inc

	if p.Clicks >= FinishThreshold {
		p.Finished = true
		p.FinishTime = time.Since(r.startTime).Milliseconds()
		r.broadcast(Event{
			Type:       EventPlayerFinished,
			PlayerID:   p.ID,
			Clicks:     p.Clicks,
			FinishTime: p.FinishTime,
		}, nil)
		r.checkRaceEnd()
		return
	}

	r.broadcast(Event{Type: EventPlayerClick, PlayerID: p.ID, Clicks: p.Clicks}, exclude)
}

// checkRaceEnd ends the race when everyone has finished, or when the grace
// window after the first finisher has lapsed. Assumes the lock is held.
func (r *Room) checkRaceEnd() {
	finished := 0
	var minFinish int64 = -1
	for _, p := range r.players {
		if p.Finished {
			finished++
			if minFinish < 0 || p.FinishTime < minFinish {
				minFinish = p.FinishTime
			}
		}
	}
	if finished == 0 {
		return
	}
	if finished == len(r.players) {
		r.endRace()
		return
	}

	elapsed := time.Since(r.startTime).Milliseconds()
	if elapsed-minFinish > r.gracePeriod.Milliseconds() {
		r.endRace()
		return
	}
	r.armGraceTimer(minFinish)
}

// armGraceTimer schedules the forced finish at firstFinish+grace so the race
// closes on time even if no further finish event ever arrives. Armed once per
// race, on the first finish. Assumes the lock is held.
func (r *Room) armGraceTimer(minFinish int64) {
	if r.graceTimer != nil {
		return
	}
	deadline := time.Duration(minFinish)*time.Millisecond + r.gracePeriod + 10*time.Millisecond
	token := r.raceToken
	r.graceTimer = time.AfterFunc(deadline-time.Since(r.startTime), func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || token != r.raceToken || r.phase != PhaseRacing {
			return
		}
		r.endRace()
	})
}

// endRace flips the room into Ended, cancels every scheduled callback for
// this race, and broadcasts the ranked results. Assumes the lock is held.
func (r *Room) endRace() {
	if r.phase != PhaseRacing {
		return
	}
	r.phase = PhaseEnded
	r.raceToken++
	r.stopTimersLocked()

	results := r.rankResults()
	r.broadcast(Event{Type: EventGameEnded, Results: results}, nil)

	log.WithFields(log.Fields{"room": r.Code, "players": len(results)}).Info("race ended")
}

// rankResults orders finishers ascending by finish time, then non-finishers
// descending by clicks; ties keep roster order. Assumes the lock is held.
func (r *Room) rankResults() []Result {
	ranked := make([]*models.Player, len(r.players))
	copy(ranked, r.players)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Finished && b.Finished {
			return a.FinishTime < b.FinishTime
		}
		if a.Finished != b.Finished {
			return a.Finished
		}
		return a.Clicks > b.Clicks
	})

	results := make([]Result, len(ranked))
	for i, p := range ranked {
		results[i] = Result{
			Rank:       i + 1,
			ID:         p.ID,
			Name:       p.Name,
			Avatar:     p.Avatar,
			IsAI:       p.IsAI,
			Clicks:     p.Clicks,
			Finished:   p.Finished,
			FinishTime: p.FinishTime,
		}
	}
	return results
}

// RemovePlayer drops a player from the roster, typically on disconnect. The
// host role migrates to the first remaining roster player, which may be a
// bot; that player alone is told it became host. An emptied room triggers
// OnEmpty outside the lock.
func (r *Room) RemovePlayer(playerID string) {
	r.mu.Lock()

	idx := -1
	for i, p := range r.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}

	wasHost := r.players[idx].IsHost
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	if len(r.players) == 0 {
		onEmpty := r.OnEmpty
		r.mu.Unlock()
		if onEmpty != nil {
			onEmpty(r.Code)
		}
		return
	}

	if wasHost {
		next := r.players[0]
		next.IsHost = true
		r.unicast(next, Event{Type: EventBecameHost})
	}
	r.broadcastRoster()
	r.mu.Unlock()
}

// Close cancels all scheduled work for the room. Called by the registry on
// deletion; any pending timer or bot fire sees the bumped token and aborts.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.raceToken++
	r.stopTimersLocked()
}

func (r *Room) stopTimersLocked() {
	if r.countdownTimer != nil {
		r.countdownTimer.Stop()
		r.countdownTimer = nil
	}
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

// sweep drops players whose connection is confirmed closed and reports
// whether the room should be deleted: expired past ttl, or nobody left with
// an open connection (bot-only rooms included).
func (r *Room) sweep(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.players[:0]
	dropped := false
	for _, p := range r.players {
		if p.Conn != nil && !p.Conn.IsOpen() {
			dropped = true
			continue
		}
		kept = append(kept, p)
	}
	r.players = kept

	open := 0
	hasHost := false
	for _, p := range r.players {
		if p.Conn != nil {
			open++
		}
		if p.IsHost {
			hasHost = true
		}
	}
	if open == 0 || now.Sub(r.CreatedAt) > ttl {
		return true
	}

	if dropped {
		if !hasHost {
			next := r.players[0]
			next.IsHost = true
			r.unicast(next, Event{Type: EventBecameHost})
		}
		r.broadcastRoster()
	}
	return false
}

// broadcast fans an event out to every open connection in the room, skipping
// exclude if given. Delivery is fire-and-forget. Assumes the lock is held;
// per-connection outboxes never block, so holding it is safe.
func (r *Room) broadcast(ev Event, exclude *models.PlayerConn) {
	for _, p := range r.players {
		if p.Conn == nil {
			continue
		}
		if exclude != nil && p.Conn == exclude {
			continue
		}
		p.Conn.Write(ev)
	}
}

// unicast delivers an event to one player if their connection is open.
// Assumes the lock is held.
func (r *Room) unicast(p *models.Player, ev Event) {
	if p.Conn != nil {
		p.Conn.Write(ev)
	}
}

// BroadcastRoster publishes the current roster to the whole room. Exposed so
// the session layer can order it after a direct reply.
func (r *Room) BroadcastRoster() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastRoster()
}

func (r *Room) broadcastRoster() {
	roster := make([]PlayerInfo, len(r.players))
	for i, p := range r.players {
		roster[i] = PlayerInfo{
			ID:       p.ID,
			Name:     p.Name,
			Avatar:   p.Avatar,
			IsAI:     p.IsAI,
			IsHost:   p.IsHost,
			Ready:    p.Ready,
			Clicks:   p.Clicks,
			Finished: p.Finished,
			Color:    p.Color,
		}
	}
	r.broadcast(Event{Type: EventPlayersUpdate, Players: roster}, nil)
}

func (r *Room) findPlayer(playerID string) *models.Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// Phase returns the room's current lifecycle stage.
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Players returns a snapshot of the roster in insertion order.
func (r *Room) Players() []*models.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Player, len(r.players))
	copy(out, r.players)
	return out
}

// PlayerCount returns the roster size, bots included.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}
