package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drstein77/storefront/internal/catalog"
	"github.com/drstein77/storefront/internal/checkout"
	"github.com/drstein77/storefront/internal/commerce"
	"github.com/drstein77/storefront/internal/config"
	"github.com/drstein77/storefront/internal/controllers"
	"github.com/drstein77/storefront/internal/dbkeeper"
	"github.com/drstein77/storefront/internal/filekeeper"
	"github.com/drstein77/storefront/internal/logger"
	"github.com/drstein77/storefront/internal/session"
	"github.com/drstein77/storefront/internal/storage"
	"github.com/drstein77/storefront/internal/views"
)

const (
	// visitors idle this long are dropped from memory; a keeper still holds their cart
	visitorIdle   = 2 * time.Hour
	pruneInterval = 10 * time.Minute
)

type Server struct {
	mu  sync.Mutex
	srv *http.Server
	ctx context.Context
	log *logger.Logger

	storage  *storage.MemoryStorage
	visitors *session.Registry
	done     chan struct{}
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a new Server instance with the provided context
func NewServer(ctx context.Context) *Server {
	server := new(Server)
	server.ctx = ctx
	server.log = logger.NewNop()
	server.done = make(chan struct{})
	server.stopped = make(chan struct{})
	return server
}

// Serve starts the server and blocks until it is shut down
func (server *Server) Serve() {
	// create and initialize a new option instance
	option := config.NewOptions()
	option.ParseFlags()

	// get a new logger
	nLogger, err := logger.NewLogger(option.LogLevel())
	if err != nil {
		log.Fatalln(err)
	}
	server.mu.Lock()
	server.log = nLogger
	server.mu.Unlock()

	// initialize the keeper and the storage
	keeper, contacts := initializeKeeper(server.ctx, option, nLogger)
	store := storage.NewMemoryStorage(server.ctx, keeper, nLogger.Named("storage"))

	profile := option.Profile()
	client := commerce.NewClient(option.GraphQLEndpoint(), option.RequestTimeout(), nLogger.Named("commerce"))
	visitors := session.NewRegistry(store, client, checkout.Options{
		Debounce:       option.Debounce(),
		DefaultCountry: profile.DefaultCountry,
		DefaultState:   profile.DefaultState,
	}, nLogger.Named("session"))

	renderer, err := views.New(profile)
	if err != nil {
		nLogger.Error("cannot parse templates", zap.Error(err))
		return
	}

	basecontr := controllers.NewBaseController(server.ctx, visitors,
		catalog.NewService(profile.ProductsPerPage, nLogger.Named("catalog")),
		renderer, contacts, store, nLogger)

	// configure and start the server
	srv := &http.Server{
		Addr:         option.RunAddr(),
		Handler:      basecontr.Route(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server.mu.Lock()
	if server.ctx.Err() != nil {
		// signalled before the listener existed; Shutdown had nothing to stop
		server.mu.Unlock()
		store.Close()
		return
	}
	server.srv = srv
	server.storage = store
	server.visitors = visitors
	server.mu.Unlock()

	server.wg.Add(1)
	go server.pruneVisitors(visitors)

	nLogger.Info("starting storefront",
		zap.String("addr", option.RunAddr()),
		zap.String("endpoint", client.Endpoint()),
	)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// wait for Shutdown to finish flushing before main returns
		<-server.stopped
		return
	}
	nLogger.Error("listen failed", zap.Error(err))
}

// initializeKeeper prefers PostgreSQL, then the snapshot file, then memory only.
// contacts is nil unless the database is in use.
func initializeKeeper(ctx context.Context, option *config.Options, log *logger.Logger) (storage.Keeper, controllers.Contacts) {
	if option.DataBaseDSN() != "" {
		if kp := dbkeeper.NewDBKeeper(ctx, option.DataBaseDSN, "migrations", log.Named("db")); kp != nil {
			return kp, kp
		}
		log.Warn("database unavailable, falling back to local storage file")
	}
	if option.StorageFile() == "" {
		return nil, nil
	}
	kp, err := filekeeper.NewFileKeeper(option.StorageFile(), log.Named("file"))
	if err != nil {
		log.Error("cannot open local storage file", zap.String("path", option.StorageFile()), zap.Error(err))
		return nil, nil
	}
	return kp, nil
}

func (server *Server) pruneVisitors(visitors *session.Registry) {
	defer server.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			visitors.Prune(visitorIdle)
		case <-server.done:
			return
		case <-server.ctx.Done():
			return
		}
	}
}

// Logger returns the server's logger; a nop logger until Serve has built the real one.
func (server *Server) Logger() *logger.Logger {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.log
}

// Shutdown stops accepting requests, waits up to timeout for in-flight ones,
// then ends every checkout session and flushes storage.
func (server *Server) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	server.mu.Lock()
	srv, lg := server.srv, server.log
	store, visitors := server.storage, server.visitors
	server.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			lg.Error("HTTP server Shutdown", zap.Error(err))
		}
	}
	close(server.done)
	server.wg.Wait()

	if visitors != nil {
		visitors.Close()
	}
	if store != nil && !store.Close() {
		lg.Error("storage did not close cleanly")
	}
	lg.Info("server stopped")
	_ = lg.Sync()
	close(server.stopped)
}
