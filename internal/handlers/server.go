// internal/handlers/server.go
package handlers

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Settings are the request-level knobs the handlers need.
type Settings struct {
	// JoinURL builds the link encoded in a room's QR code.
	JoinURL        func(code string) string
	MinAutoCall    time.Duration
	AllowedOrigins []string
	// Health checks backing services for /healthz. Nil checks are skipped.
	Health map[string]func(ctx context.Context) error
}

// Server serves the room API and sockets.
type Server struct {
	Rooms    *game.RoomStore
	Hub      *Hub
	Settings Settings
	Logger   *logrus.Logger
}

func NewServer(rooms *game.RoomStore, hub *Hub, settings Settings, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if settings.JoinURL == nil {
		settings.JoinURL = func(code string) string { return "/join/" + code }
	}
	if settings.MinAutoCall <= 0 {
		settings.MinAutoCall = time.Second
	}
	return &Server{Rooms: rooms, Hub: hub, Settings: settings, Logger: logger}
}

// Router wires every route behind the shared middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))

	// no origins means same-origin only; cors treats an empty list as "*"
	if len(s.Settings.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Settings.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Auth-Token"},
			AllowCredentials: !slices.Contains(s.Settings.AllowedOrigins, "*"),
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.healthz)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", s.createRoom)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", s.getRoom)
			r.Post("/join", s.joinRoom)
			r.Post("/leave", s.leaveRoom)
			r.Post("/patterns", s.setPatterns)
			r.Post("/start", s.startGame)
			r.Post("/call", s.callNext)
			r.Post("/autocall", s.autoCall)
			r.Post("/new-game", s.newGame)
			r.Post("/announce", s.setAnnounce)
			r.Delete("/players/{id}", s.kickPlayer)
			r.Post("/claim", s.claim)
			r.Get("/qr", s.qrCode)
			r.Get("/ws", s.roomWS)
		})
	})
	return r
}

// healthz reports each backing service; any failure makes it a 503.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{}
	for name, check := range s.Settings.Health {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			s.Logger.WithError(err).WithField("service", name).Warn("health check failed")
			report[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	report["rooms"] = strconv.Itoa(s.Rooms.Len())
	writeJSON(w, status, report)
}
