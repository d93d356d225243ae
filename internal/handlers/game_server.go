package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/clickrace/internal/game"
)

// GameServer bundles the room registry with the logger shared by every
// session handler. Constructed once at process start and passed explicitly;
// there is no ambient registry.
type GameServer struct {
	Rooms  *game.RoomStore
	Logger *logrus.Logger
}

// NewGameServer builds a server with a freshly started room registry.
func NewGameServer(logger *logrus.Logger) *GameServer {
	return &GameServer{
		Rooms:  game.NewRoomStore(),
		Logger: logger,
	}
}
