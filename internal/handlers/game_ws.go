package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/promptduel/promptduel/internal/auth"
	"github.com/promptduel/promptduel/internal/game"
	"github.com/promptduel/promptduel/internal/middleware"
)

// DuelMessage is the envelope for incoming WebSocket messages.
type DuelMessage struct {
	Type     string `json:"type"`
	Answer   string `json:"answer,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

// DuelWSHandler upgrades the connection, authenticates the player from the
// auth cookie, registers the session, and runs the read loop that feeds
// the engine.
func DuelWSHandler(logger *logrus.Logger, engine *game.Engine, registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"duel"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "duel" {
			logger.Warnf("Client connected with invalid subprotocol: %s", c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'duel' subprotocol.")
			return
		}

		token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
		userIDStr, err := auth.AuthenticateJWT(token)
		if err != nil {
			logger.Warnf("WebSocket authentication failed: %v", err)
			c.Close(websocket.StatusPolicyViolation, "Authentication failed.")
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.Close(websocket.StatusPolicyViolation, "Invalid user id in token.")
			return
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		sess := registry.Register(userID, c)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go sess.writePump(ctx, logger)

		resumeLobby(ctx, sess, engine, userID, logger)

		readErr := readDuelMessages(ctx, c, sess, engine, userID, logger)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)

		wasCurrent := registry.Unregister(userID, sess)
		sess.close(websocket.StatusNormalClosure, "session ended")
		// The socket is gone; the lobby decides whether that kills the
		// match or just marks the seat offline. A session that was
		// evicted by a newer connection stays out of it: the replacement
		// has already reconnected, and flipping the seat offline here
		// would undo that.
		if wasCurrent {
			engine.Disconnect(context.WithoutCancel(ctx), userID)
		}
	}
}

// resumeLobby restores a returning player's session before the read loop
// starts: if the player has a live lobby, it is rebound to this
// connection, the seat is marked online again, and the client receives
// the current snapshot without having to ask for it.
func resumeLobby(ctx context.Context, sess *session, engine *game.Engine, userID uuid.UUID, logger *logrus.Logger) {
	view, err := engine.Reconnect(ctx, userID)
	if errors.Is(err, game.ErrLobbyNotFound) {
		return
	}
	if err != nil {
		logger.WithError(err).WithField("user_id", userID).Warn("lobby resume failed")
		return
	}
	sendEvent(sess, game.NewEvent(game.EventReconnectState, view))
}

func readDuelMessages(ctx context.Context, c *websocket.Conn, sess *session, engine *game.Engine, userID uuid.UUID, logger *logrus.Logger) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return err
		}

		var msg DuelMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("malformed message")
			sendError(sess, "bad_message", "message could not be parsed")
			continue
		}

		switch msg.Type {
		case "findGame":
			if err := engine.CreateOrJoin(ctx, userID); err != nil {
				logger.WithError(err).WithField("user_id", userID).Error("matchmaking failed")
				sendError(sess, "matchmaking_failed", "could not find a game")
			}

		case "answer":
			lobbyID, err := engine.States().ActiveLobbyOf(ctx, userID)
			if err != nil || lobbyID == uuid.Nil {
				sendError(sess, "no_lobby", "you are not in a game")
				continue
			}
			if err := engine.SubmitAnswer(ctx, userID, lobbyID, msg.Answer); err != nil {
				sendError(sess, rejectionCode(err), err.Error())
			}

		case "typing":
			engine.Typing(ctx, userID, msg.IsTyping)

		case "reconnectToLobby":
			view, err := engine.Reconnect(ctx, userID)
			if err != nil {
				sendError(sess, rejectionCode(err), "no active game to rejoin")
				continue
			}
			sendEvent(sess, game.NewEvent(game.EventReconnectState, view))

		default:
			sendError(sess, "unknown_type", "unsupported message type: "+msg.Type)
		}
	}
}

// rejectionCode maps engine sentinel errors to stable client-facing codes.
func rejectionCode(err error) string {
	switch {
	case errors.Is(err, game.ErrLobbyNotFound):
		return "lobby_not_found"
	case errors.Is(err, game.ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, game.ErrRoundNotStarted):
		return "round_not_started"
	case errors.Is(err, game.ErrRoundClosed):
		return "round_closed"
	case errors.Is(err, game.ErrAlreadyAnswered):
		return "already_answered"
	}
	return "internal_error"
}

func sendEvent(sess *session, ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	sess.enqueue(data)
}

func sendError(sess *session, code, message string) {
	sendEvent(sess, game.NewEvent(game.EventError, game.ErrorPayload{Code: code, Message: message}))
}
