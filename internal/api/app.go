package api

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/vidshare/roomchat/internal/config"
	"github.com/vidshare/roomchat/internal/server"
	"github.com/vidshare/roomchat/internal/store"
	"github.com/vidshare/roomchat/internal/uploads"
)

// App is the HTTP surface: identity endpoints, the room history endpoint,
// the upload endpoint and the websocket entry point.
type App struct {
	log            *log.Logger
	db             store.Repository
	srv            *http.Server
	cs             *server.ChatServer
	uploads        uploads.Store
	signingKey     []byte
	allowedOrigins []string
}

func NewApp(logger *log.Logger, cs *server.ChatServer, db store.Repository, up uploads.Store, cfg *config.Config) *App {
	a := &App{
		log:            logger,
		db:             db,
		cs:             cs,
		uploads:        up,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", a.createAccount)
	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("GET /api/auth/session", a.authMiddleware(a.session))
	mux.HandleFunc("GET /api/auth/logout", a.authMiddleware(a.logout))
	mux.HandleFunc("GET /api/messages/room/{roomId}", a.roomMessages)
	mux.HandleFunc("POST /api/uploads", a.upload)
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	mux.HandleFunc("GET /ws", a.serveWs)
	mux.Handle("GET /debug/vars", expvar.Handler())

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = a.recoverPanic(h)

	a.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return a
}

func (a *App) Start() error {
	a.log.Printf("starting server on %s\n", a.srv.Addr)
	return a.srv.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Println("shutting down HTTP server...")
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
