package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/clickrace/internal/handlers"
	"github.com/jason-s-yu/clickrace/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	srv := handlers.NewGameServer(logger)

	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(logger))

	r.Get("/ws", handlers.WSHandler(logger, srv))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Static client assets; the game itself lives entirely behind /ws.
	staticDir := os.Getenv("STATIC_DIR")
	if staticDir == "" {
		staticDir = "web"
	}
	r.Handle("/*", http.FileServer(http.Dir(staticDir)))

	addr := ":3000"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("clickrace server running on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
