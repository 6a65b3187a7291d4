package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/promptduel/promptduel/internal/database"
	"github.com/promptduel/promptduel/internal/game"
	"github.com/promptduel/promptduel/internal/middleware"
)

// Server bundles the HTTP surface: account endpoints plus the duel
// WebSocket.
type Server struct {
	Log      *logrus.Logger
	DB       *database.DB
	Engine   *game.Engine
	Registry *Registry
}

func NewServer(log *logrus.Logger, db *database.DB, engine *game.Engine, registry *Registry) *Server {
	return &Server{Log: log, DB: db, Engine: engine, Registry: registry}
}

// Routes builds the mux with request logging on every endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(s.Log)

	mux.Handle("/user/create", logged(CreateUserHandler(s.Log, s.DB)))
	mux.Handle("/user/login", logged(LoginHandler(s.Log, s.DB)))
	mux.Handle("/duel/ws", logged(DuelWSHandler(s.Log, s.Engine, s.Registry)))
	return mux
}
