package game

import (
	"math/rand"
	"time"
)

// botProfile tunes one simulated racer: clicks per second, how tightly the
// cadence holds to it, and how often a burst of speed halves the delay.
type botProfile struct {
	Name   string
	Avatar string
	Color  string

	BaseSpeed float64 // clicks per second
	Variance  float64 // (0,1], higher means steadier cadence
	Burst     float64 // probability of a half-delay burst per tick
}

// botProfiles are the seven fixed archetypes, fastest first. Each is seated
// at most once per room; removeAI clears them all at once.
var botProfiles = [...]botProfile{
	{Name: "Lightning", Avatar: "⚡", Color: "#FFD700", BaseSpeed: 8.5, Variance: 0.85, Burst: 0.30},
	{Name: "Click King", Avatar: "\U0001F451", Color: "#C0C0C0", BaseSpeed: 7.8, Variance: 0.90, Burst: 0.25},
	{Name: "Auto Clicker", Avatar: "\U0001F916", Color: "#CD7F32", BaseSpeed: 7.2, Variance: 0.95, Burst: 0.20},
	{Name: "Windrunner", Avatar: "\U0001F4A8", Color: "#00f5ff", BaseSpeed: 6.8, Variance: 0.88, Burst: 0.18},
	{Name: "Sharpshooter", Avatar: "\U0001F3AF", Color: "#ff006e", BaseSpeed: 6.2, Variance: 0.92, Burst: 0.12},
	{Name: "Steady", Avatar: "\U0001F422", Color: "#2ecc71", BaseSpeed: 5.5, Variance: 0.97, Burst: 0.08},
	{Name: "Rookie", Avatar: "\U0001F3AE", Color: "#8338ec", BaseSpeed: 4.8, Variance: 0.90, Burst: 0.05},
}

var fallbackProfile = botProfile{BaseSpeed: 6, Variance: 0.9, Burst: 0.1}

func profileByName(name string) botProfile {
	for _, p := range botProfiles {
		if p.Name == name {
			return p
		}
	}
	return fallbackProfile
}

// botDelay computes the next inter-click delay: the archetype's base cadence,
// jittered by its variance, occasionally halved by a burst, and stretched as
// the bot nears the finish line to keep races close.
func botDelay(prof botProfile, clicks int) time.Duration {
	interval := 1000.0 / prof.BaseSpeed
	interval *= 1 + (rand.Float64()-0.5)*(1-prof.Variance)
	if rand.Float64() < prof.Burst {
		interval *= 0.5
	}
	interval *= 1 + float64(clicks)/float64(FinishThreshold)*0.4
	return time.Duration(interval * float64(time.Millisecond))
}

// botIncrement is 2 on the occasional double-click, otherwise 1.
func botIncrement() int {
	if rand.Float64() < 0.1 {
		return 2
	}
	return 1
}

// scheduleBotClick arms one bot's next click. Each fire re-validates that the
// room is still racing under the token it was scheduled with, applies the
// increment exactly like a human click (broadcast to everyone, finish and
// end-of-race checks included), and reschedules itself until the bot finishes
// or the race is torn down. Assumes the lock is held.
func (r *Room) scheduleBotClick(botID string, token uint64) {
	p := r.findPlayer(botID)
	if p == nil {
		return
	}
	delay := botDelay(profileByName(p.Name), p.Clicks)

	time.AfterFunc(delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.closed || token != r.raceToken || r.phase != PhaseRacing {
			return
		}
		bot := r.findPlayer(botID)
		if bot == nil || bot.Finished {
			return
		}

		r.applyClicks(bot, botIncrement(), nil)

		// applyClicks may have ended the race or finished this bot.
		if r.phase != PhaseRacing || bot.Finished {
			return
		}
		r.scheduleBotClick(botID, token)
	})
}
