package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/clickrace/internal/models"
)

// testConn builds a connection wrapper with a large outbox and no socket, so
// tests can observe exactly what a client would have been sent.
func testConn() *models.PlayerConn {
	return models.NewPlayerConn(nil, nil)
}

// drain empties a connection's outbox into a slice of events.
func drain(c *models.PlayerConn) []Event {
	var evs []Event
	for {
		select {
		case m := <-c.Out:
			evs = append(evs, m.(Event))
		default:
			return evs
		}
	}
}

func eventTypes(evs []Event) []EventType {
	out := make([]EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// setupRoom builds a room with n connected human players; the first is host.
func setupRoom(t *testing.T, n int) (*Room, []*models.Player, []*models.PlayerConn) {
	t.Helper()
	r := NewRoom("TEST")
	players := make([]*models.Player, n)
	conns := make([]*models.PlayerConn, n)
	for i := 0; i < n; i++ {
		conns[i] = testConn()
		p, err := r.Join(fmt.Sprintf("player-%d", i), conns[i])
		require.NoError(t, err)
		players[i] = p
	}
	return r, players, conns
}

// startRace readies everyone and runs the countdown on a short tick until the
// room is racing.
func startRace(t *testing.T, r *Room, players []*models.Player) {
	t.Helper()
	r.mu.Lock()
	r.countdownTick = time.Millisecond
	for _, p := range r.players {
		p.Ready = true
	}
	r.mu.Unlock()

	require.NoError(t, r.Start(players[0].ID))
	require.Eventually(t, func() bool { return r.Phase() == PhaseRacing },
		time.Second, time.Millisecond, "countdown should reach the racing phase")
}

func TestJoinAssignsHostAndColors(t *testing.T) {
	r, players, _ := setupRoom(t, 3)

	assert.True(t, players[0].IsHost)
	assert.False(t, players[1].IsHost)
	assert.Equal(t, playerColors[0], players[0].Color)
	assert.Equal(t, playerColors[1], players[1].Color)
	assert.Equal(t, playerColors[2], players[2].Color)
	assert.Len(t, players[0].ID, 8)
	assert.Equal(t, PhaseLobby, r.Phase())
}

func TestJoinDefaultsEmptyName(t *testing.T) {
	r := NewRoom("TEST")
	p, err := r.Join("", testConn())
	require.NoError(t, err)
	assert.Equal(t, "Player", p.Name)
}

func TestRoomCapacity(t *testing.T) {
	r, _, _ := setupRoom(t, MaxPlayers)

	_, err := r.Join("ninth", testConn())
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, MaxPlayers, r.PlayerCount())
}

func TestJoinRejectedDuringRace(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	startRace(t, r, players)

	_, err := r.Join("late", testConn())
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestJoinRejectedDuringCountdown(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	r.mu.Lock()
	for _, p := range r.players {
		p.Ready = true
	}
	r.mu.Unlock()
	require.NoError(t, r.Start(players[0].ID))
	require.Equal(t, PhaseStarting, r.Phase())

	_, err := r.Join("late", testConn())
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestStartGuardNotEnoughReady(t *testing.T) {
	r, players, _ := setupRoom(t, 3)
	r.ToggleReady(players[0].ID, true)

	err := r.Start(players[0].ID)
	assert.ErrorIs(t, err, ErrNotEnoughReady)
	assert.Equal(t, PhaseLobby, r.Phase())
}

func TestStartRequiresHost(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	r.ToggleReady(players[0].ID, true)
	r.ToggleReady(players[1].ID, true)

	err := r.Start(players[1].ID)
	assert.ErrorIs(t, err, ErrNotHost)
	assert.Equal(t, PhaseLobby, r.Phase())
}

func TestCountdownSequence(t *testing.T) {
	r, players, conns := setupRoom(t, 2)
	drain(conns[0])
	startRace(t, r, players)

	evs := drain(conns[0])
	var got []EventType
	for _, ev := range evs {
		switch ev.Type {
		case EventGameStarting, EventCountdown, EventGameStarted:
			got = append(got, ev.Type)
		}
	}
	require.Equal(t, []EventType{EventGameStarting, EventCountdown, EventCountdown, EventGameStarted}, got)

	assert.Equal(t, CountdownSeconds, evs[0].Countdown)
	var values []int
	for _, ev := range evs {
		if ev.Type == EventCountdown {
			values = append(values, ev.Value)
		}
	}
	assert.Equal(t, []int{2, 1}, values)
}

func TestClickAccumulationAndEcho(t *testing.T) {
	r, players, conns := setupRoom(t, 2)
	startRace(t, r, players)
	drain(conns[0])
	drain(conns[1])

	r.Click(players[0].ID, false)
	r.Click(players[0].ID, false)
	r.Click(players[0].ID, true) // nitro counts double

	assert.Equal(t, 4, players[0].Clicks)

	// The acting connection is excluded from its own click echo.
	assert.Empty(t, drain(conns[0]))
	other := drain(conns[1])
	require.Len(t, other, 3)
	assert.Equal(t, EventPlayerClick, other[0].Type)
	assert.Equal(t, players[0].ID, other[0].PlayerID)
	assert.Equal(t, 4, other[2].Clicks)
}

func TestClickIgnoredOutsideRace(t *testing.T) {
	r, players, _ := setupRoom(t, 2)

	r.Click(players[0].ID, false)
	assert.Zero(t, players[0].Clicks)
}

func TestFinishMonotonicity(t *testing.T) {
	r, players, conns := setupRoom(t, 2)
	startRace(t, r, players)
	drain(conns[0])
	drain(conns[1])

	r.mu.Lock()
	players[0].Clicks = FinishThreshold - 1
	r.mu.Unlock()

	r.Click(players[0].ID, false)
	require.True(t, players[0].Finished)
	require.Equal(t, FinishThreshold, players[0].Clicks)
	finishTime := players[0].FinishTime

	// Finished players cannot accumulate further clicks.
	r.Click(players[0].ID, true)
	assert.Equal(t, FinishThreshold, players[0].Clicks)
	assert.Equal(t, finishTime, players[0].FinishTime)

	// playerFinished goes to everyone, the finisher included.
	finisher := drain(conns[0])
	require.Len(t, finisher, 1)
	assert.Equal(t, EventPlayerFinished, finisher[0].Type)
	assert.Equal(t, FinishThreshold, finisher[0].Clicks)
}

func TestRankingLaw(t *testing.T) {
	r, players, conns := setupRoom(t, 5)
	startRace(t, r, players)

	r.mu.Lock()
	players[0].Finished, players[0].FinishTime = true, 120
	players[1].Finished, players[1].FinishTime = true, 300
	players[2].Finished, players[2].FinishTime = true, 80
	players[3].Clicks = 150
	players[4].Clicks = 200
	r.endRace()
	r.mu.Unlock()

	evs := drain(conns[0])
	var ended *Event
	for i := range evs {
		if evs[i].Type == EventGameEnded {
			ended = &evs[i]
		}
	}
	require.NotNil(t, ended, "expected a gameEnded broadcast")
	require.Len(t, ended.Results, 5)

	want := []string{players[2].ID, players[0].ID, players[1].ID, players[4].ID, players[3].ID}
	for i, res := range ended.Results {
		assert.Equal(t, i+1, res.Rank)
		assert.Equal(t, want[i], res.ID)
	}
	assert.EqualValues(t, 80, ended.Results[0].FinishTime)
	assert.False(t, ended.Results[3].Finished)
}

func TestRankingTiesKeepRosterOrder(t *testing.T) {
	r, players, conns := setupRoom(t, 3)
	startRace(t, r, players)

	r.mu.Lock()
	players[0].Finished, players[0].FinishTime = true, 100
	players[1].Clicks = 50
	players[2].Clicks = 50
	r.endRace()
	r.mu.Unlock()

	evs := drain(conns[0])
	ended := evs[len(evs)-1]
	require.Equal(t, EventGameEnded, ended.Type)
	assert.Equal(t, players[1].ID, ended.Results[1].ID)
	assert.Equal(t, players[2].ID, ended.Results[2].ID)
}

func TestAllFinishedEndsRaceImmediately(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	startRace(t, r, players)

	r.mu.Lock()
	players[0].Clicks = FinishThreshold - 1
	players[1].Clicks = FinishThreshold - 1
	r.mu.Unlock()

	r.Click(players[0].ID, false)
	require.Equal(t, PhaseRacing, r.Phase())
	r.Click(players[1].ID, false)
	assert.Equal(t, PhaseEnded, r.Phase())
}

func TestGracePeriodTermination(t *testing.T) {
	r, players, conns := setupRoom(t, 3)
	r.mu.Lock()
	r.gracePeriod = 50 * time.Millisecond
	r.mu.Unlock()
	startRace(t, r, players)

	r.mu.Lock()
	players[0].Clicks = FinishThreshold - 1
	players[1].Clicks = 40
	players[2].Clicks = 70
	r.mu.Unlock()
	r.Click(players[0].ID, false)
	require.True(t, players[0].Finished)
	require.Equal(t, PhaseRacing, r.Phase())

	// Nobody else finishes; the grace deadline must close the race anyway.
	require.Eventually(t, func() bool { return r.Phase() == PhaseEnded },
		time.Second, 5*time.Millisecond)

	evs := drain(conns[1])
	ended := evs[len(evs)-1]
	require.Equal(t, EventGameEnded, ended.Type)
	assert.Equal(t, players[0].ID, ended.Results[0].ID)
	assert.Equal(t, players[2].ID, ended.Results[1].ID)
	assert.Equal(t, players[1].ID, ended.Results[2].ID)
}

func TestNewRaceResetsState(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	startRace(t, r, players)

	r.mu.Lock()
	players[0].Finished, players[0].FinishTime = true, 90
	players[1].Clicks = 123
	r.endRace()
	r.mu.Unlock()
	require.Equal(t, PhaseEnded, r.Phase())

	r.mu.Lock()
	r.countdownTick = time.Hour
	r.mu.Unlock()

	// Ended re-enters lobby rules: startGame is the reset.
	require.NoError(t, r.Start(players[0].ID))
	assert.Equal(t, PhaseStarting, r.Phase())
	for _, p := range r.Players() {
		assert.Zero(t, p.Clicks)
		assert.False(t, p.Finished)
		assert.Zero(t, p.FinishTime)
	}
}

func TestStartIgnoredWhileRacing(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	startRace(t, r, players)

	err := r.Start(players[0].ID)
	assert.ErrorIs(t, err, ErrGameInProgress)
	assert.Equal(t, PhaseRacing, r.Phase())
}

func TestToggleReadyHasNoPhaseGuard(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	startRace(t, r, players)

	// Toggling mid-race is allowed and only affects display state.
	r.ToggleReady(players[1].ID, false)
	assert.False(t, players[1].Ready)
	assert.Equal(t, PhaseRacing, r.Phase())
}

func TestHostMigration(t *testing.T) {
	r, players, conns := setupRoom(t, 3)
	drain(conns[1])
	drain(conns[2])

	r.RemovePlayer(players[0].ID)

	require.Equal(t, 2, r.PlayerCount())
	assert.True(t, players[1].IsHost, "first remaining roster player becomes host")
	assert.False(t, players[2].IsHost)

	hosts := 0
	for _, p := range r.Players() {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts, "exactly one host at all times")

	newHost := drain(conns[1])
	require.NotEmpty(t, newHost)
	assert.Equal(t, EventBecameHost, newHost[0].Type)
	assert.Equal(t, EventPlayersUpdate, newHost[1].Type)

	for _, ev := range drain(conns[2]) {
		assert.NotEqual(t, EventBecameHost, ev.Type, "only the new host is notified")
	}
}

func TestRemoveLastPlayerTriggersOnEmpty(t *testing.T) {
	r, players, _ := setupRoom(t, 1)
	var emptied []string
	r.OnEmpty = func(code string) { emptied = append(emptied, code) }

	r.RemovePlayer(players[0].ID)
	assert.Equal(t, []string{"TEST"}, emptied)
}

func TestAddBotHostOnly(t *testing.T) {
	r, players, _ := setupRoom(t, 2)

	err := r.AddBot(players[1].ID)
	assert.ErrorIs(t, err, ErrNotHost)
	assert.Equal(t, 2, r.PlayerCount())

	require.NoError(t, r.AddBot(players[0].ID))
	assert.Equal(t, 3, r.PlayerCount())

	bots := botCount(r)
	require.Equal(t, 1, bots)
	bot := r.Players()[2]
	assert.True(t, bot.IsAI)
	assert.True(t, bot.Ready, "bots are always ready")
	assert.Nil(t, bot.Conn)
}

func TestAddBotArchetypesAreUnique(t *testing.T) {
	r, players, _ := setupRoom(t, 1)
	for i := 0; i < len(botProfiles); i++ {
		require.NoError(t, r.AddBot(players[0].ID))
	}

	seen := map[string]bool{}
	for _, p := range r.Players() {
		if p.IsAI {
			assert.False(t, seen[p.Name], "archetype %q seated twice", p.Name)
			seen[p.Name] = true
		}
	}
	assert.Len(t, seen, len(botProfiles))

	err := r.AddBot(players[0].ID)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestRemoveBotsRemovesAll(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	require.NoError(t, r.AddBot(players[0].ID))
	require.NoError(t, r.AddBot(players[0].ID))
	require.NoError(t, r.AddBot(players[0].ID))
	require.Equal(t, 3, botCount(r))

	assert.ErrorIs(t, r.RemoveBots(players[1].ID), ErrNotHost)
	require.Equal(t, 3, botCount(r))

	require.NoError(t, r.RemoveBots(players[0].ID))
	assert.Zero(t, botCount(r))
	assert.Equal(t, 2, r.PlayerCount())
}

func TestNitroIsCosmetic(t *testing.T) {
	r, players, conns := setupRoom(t, 2)
	startRace(t, r, players)
	drain(conns[0])
	drain(conns[1])

	r.Nitro(players[0].ID)

	assert.Zero(t, players[0].Clicks)
	evs := drain(conns[1])
	require.Len(t, evs, 1)
	assert.Equal(t, EventPlayerNitro, evs[0].Type)
	assert.Equal(t, players[0].ID, evs[0].PlayerID)

	// Unlike click echoes, the sender sees the nitro flare too.
	self := drain(conns[0])
	require.Len(t, self, 1)
	assert.Equal(t, EventPlayerNitro, self[0].Type)
}

func TestCloseCancelsCountdown(t *testing.T) {
	r, players, _ := setupRoom(t, 2)
	r.mu.Lock()
	r.countdownTick = 5 * time.Millisecond
	for _, p := range r.players {
		p.Ready = true
	}
	r.mu.Unlock()
	require.NoError(t, r.Start(players[0].ID))

	r.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, PhaseStarting, r.Phase(), "a closed room never reaches racing")
}

func botCount(r *Room) int {
	n := 0
	for _, p := range r.Players() {
		if p.IsAI {
			n++
		}
	}
	return n
}
