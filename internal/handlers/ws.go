package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jason-s-yu/clickrace/internal/game"
	"github.com/jason-s-yu/clickrace/internal/middleware"
	"github.com/jason-s-yu/clickrace/internal/models"
)

// ClientMessage is the envelope for every inbound frame; Type selects the
// action and the remaining fields are populated per type.
type ClientMessage struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName,omitempty"`
	RoomCode   string `json:"roomCode,omitempty"`
	Ready      bool   `json:"ready,omitempty"`
	Nitro      bool   `json:"nitro,omitempty"`
}

// WSHandler upgrades the connection and runs one player session over it: the
// read pump binds the connection to a (room, player) pair and dispatches
// messages; the write pump drains the session outbox. When the read pump
// exits the player is removed from their room, which drives host migration
// and empty-room deletion.
func WSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := models.NewPlayerConn(c, cancel)
		go writePump(ctx, c, conn, logger)

		sess := &session{gs: gs, conn: conn, logger: logger}
		sess.readPump(ctx, c)

		conn.MarkClosed()
		sess.leave()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// session tracks which room and player identity one connection is bound to.
// Only the read pump touches these fields, so no locking is needed here.
type session struct {
	gs     *GameServer
	conn   *models.PlayerConn
	logger *logrus.Logger

	room     *game.Room
	playerID string
}

// readPump reads frames until the connection dies. Malformed frames get an
// error reply and are otherwise ignored; a failure on one connection never
// touches any other room or connection. Inbound frames are throttled so a
// click flood cannot starve the room lock.
func (s *session) readPump(ctx context.Context, c *websocket.Conn) {
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 40)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.logger.Debugf("websocket closed normally: %v", err)
			} else if !strings.Contains(err.Error(), "context canceled") {
				s.logger.Warnf("websocket read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warnf("invalid json frame: %v", err)
			s.conn.Write(game.ErrorEvent("invalid message format"))
			continue
		}

		s.dispatch(msg)
	}
}

func (s *session) dispatch(msg ClientMessage) {
	switch msg.Type {
	case "createRoom":
		s.handleCreate(msg)
	case "joinRoom":
		s.handleJoin(msg)
	case "toggleReady":
		if s.room != nil {
			s.room.ToggleReady(s.playerID, msg.Ready)
		}
	case "addAI":
		s.handleAddBot()
	case "removeAI":
		if s.room != nil {
			// Non-host requests are dropped without a reply.
			_ = s.room.RemoveBots(s.playerID)
		}
	case "startGame":
		s.handleStart()
	case "playerClick":
		if s.room != nil {
			s.room.Click(s.playerID, msg.Nitro)
		}
	case "useNitro":
		if s.room != nil {
			s.room.Nitro(s.playerID)
		}
	default:
		s.logger.Debugf("ignoring unknown message type %q", msg.Type)
	}
}

func (s *session) handleCreate(msg ClientMessage) {
	// Rebinding a live session implies leaving the previous room first, so
	// the old roster never keeps a ghost entry.
	s.leave()

	room, host := s.gs.Rooms.CreateRoom(msg.PlayerName, s.conn)
	s.room = room
	s.playerID = host.ID

	s.conn.Write(game.Event{
		Type:     game.EventRoomCreated,
		RoomCode: room.Code,
		PlayerID: host.ID,
		IsHost:   game.BoolPtr(true),
	})
	room.BroadcastRoster()
}

func (s *session) handleJoin(msg ClientMessage) {
	s.leave()

	room, ok := s.gs.Rooms.Get(msg.RoomCode)
	if !ok {
		s.conn.Write(game.ErrorEvent(game.ErrRoomNotFound.Error()))
		return
	}

	p, err := room.Join(msg.PlayerName, s.conn)
	if err != nil {
		s.conn.Write(game.ErrorEvent(err.Error()))
		return
	}
	s.room = room
	s.playerID = p.ID

	s.conn.Write(game.Event{
		Type:     game.EventJoinedRoom,
		RoomCode: room.Code,
		PlayerID: p.ID,
		IsHost:   game.BoolPtr(false),
	})
	room.BroadcastRoster()
}

func (s *session) handleAddBot() {
	if s.room == nil {
		return
	}
	err := s.room.AddBot(s.playerID)
	if errors.Is(err, game.ErrRoomFull) {
		s.conn.Write(game.ErrorEvent(err.Error()))
	}
	// ErrNotHost and ErrBotsExhausted are dropped without a reply, matching
	// the observed protocol.
}

func (s *session) handleStart() {
	if s.room == nil {
		return
	}
	err := s.room.Start(s.playerID)
	if errors.Is(err, game.ErrNotEnoughReady) {
		s.conn.Write(game.ErrorEvent(err.Error()))
	}
	// ErrNotHost and ErrGameInProgress are dropped without a reply.
}

func (s *session) leave() {
	if s.room == nil {
		return
	}
	s.room.RemovePlayer(s.playerID)
	s.room = nil
	s.playerID = ""
}

// writePump is the single writer for one connection: it drains the session
// outbox in order and pings periodically so dead peers are detected even
// when the room is quiet.
func writePump(ctx context.Context, c *websocket.Conn, conn *models.PlayerConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.Out:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing message: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				// Broken pipe; the read pump notices and tears the session down.
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debugf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}
