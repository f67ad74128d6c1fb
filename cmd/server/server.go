package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	appkafka "example.com/timelinefeed/internal/broker"
	"example.com/timelinefeed/internal/engine"
	config "example.com/timelinefeed/internal/init"
	"example.com/timelinefeed/internal/logger"
	"example.com/timelinefeed/internal/middleware"
	"example.com/timelinefeed/internal/store"
)

// Server exposes the engine over HTTP and publishes every accepted mutation
// to the activity topic before applying it.
type Server struct {
	engine      *engine.Engine
	kafkaWriter appkafka.KafkaWriter
	jwtSecret   []byte

	// writeMu keeps journal order identical to engine order: an event is
	// applied only after it was published, and no other mutation interleaves.
	writeMu sync.Mutex
}

var logg = logger.New()

func New(eng *engine.Engine, writer appkafka.KafkaWriter, jwtSecret []byte) *Server {
	return &Server{
		engine:      eng,
		kafkaWriter: writer,
		jwtSecret:   jwtSecret,
	}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() http.Handler {
	auth := middleware.JWTAuth(s.jwtSecret)
	mux := http.NewServeMux()

	// Protected endpoints with JWT authentication middleware
	mux.Handle("/posts", auth(http.HandlerFunc(s.createPostHandler)))
	mux.Handle("/follow", auth(http.HandlerFunc(s.followHandler)))
	mux.Handle("/unfollow", auth(http.HandlerFunc(s.unfollowHandler)))
	mux.Handle("/feed", auth(http.HandlerFunc(s.getFeedHandler)))

	// Public endpoint issuing tokens (no JWT required)
	mux.Handle("/users", http.HandlerFunc(s.createUserHandler))
	return mux
}

// Replay rebuilds engine state from the journal.
func Replay(eng *engine.Engine, st store.StoreInterface) error {
	events, err := st.LoadEvents()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	n, err := eng.Replay(events)
	if err != nil {
		return err
	}
	logg.Info("server", fmt.Sprintf("Replayed %d journal events, last sequence %d", n, eng.LastSequence()))
	return nil
}

// Run starts the HTTP(S) server with JWT-protected routes and graceful shutdown.
func Run(ctx context.Context, s *Server, cfg *config.Config) {
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if cfg.TLSEnabled() {
			logg.Info("server", "Starting HTTPS server on "+cfg.ServerAddr)
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+cfg.ServerAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
