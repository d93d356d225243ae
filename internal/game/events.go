package game

// EventType enumerates every server-to-client message type.
type EventType string

const (
	EventRoomCreated    EventType = "roomCreated"
	EventJoinedRoom     EventType = "joinedRoom"
	EventPlayersUpdate  EventType = "playersUpdate"
	EventGameStarting   EventType = "gameStarting"
	EventCountdown      EventType = "countdown"
	EventGameStarted    EventType = "gameStarted"
	EventPlayerClick    EventType = "playerClick"
	EventPlayerNitro    EventType = "playerNitro"
	EventPlayerFinished EventType = "playerFinished"
	EventGameEnded      EventType = "gameEnded"
	EventBecameHost     EventType = "becameHost"
	EventError          EventType = "error"
)

// Event is the single wire envelope; one event per text frame. Fields not
// relevant to a given type are omitted from the payload. IsHost is a pointer
// so joinedRoom can carry an explicit false.
type Event struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message,omitempty"`
	RoomCode string    `json:"roomCode,omitempty"`
	PlayerID string    `json:"playerId,omitempty"`
	IsHost   *bool     `json:"isHost,omitempty"`

	Players []PlayerInfo `json:"players,omitempty"`
	Results []Result     `json:"results,omitempty"`

	Countdown  int   `json:"countdown,omitempty"`
	Value      int   `json:"value,omitempty"`
	StartTime  int64 `json:"startTime,omitempty"`
	Clicks     int   `json:"clicks,omitempty"`
	FinishTime int64 `json:"finishTime,omitempty"`
}

// PlayerInfo is the roster entry carried by playersUpdate broadcasts.
type PlayerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsAI     bool   `json:"isAI"`
	IsHost   bool   `json:"isHost"`
	Ready    bool   `json:"ready"`
	Clicks   int    `json:"clicks"`
	Finished bool   `json:"finished"`
	Color    string `json:"color"`
}

// Result is one ranked row of a gameEnded broadcast. Finishers rank ahead of
// non-finishers; FinishTime is omitted for players who never crossed the line.
type Result struct {
	Rank       int    `json:"rank"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	IsAI       bool   `json:"isAI"`
	Clicks     int    `json:"clicks"`
	Finished   bool   `json:"finished"`
	FinishTime int64  `json:"finishTime,omitempty"`
}

// BoolPtr exists so callers can populate Event.IsHost inline.
func BoolPtr(b bool) *bool { return &b }

// ErrorEvent builds the targeted error reply sent to a single connection.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
