// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/auth"
	"github.com/genzdict/battlegate/internal/database"
	"github.com/genzdict/battlegate/internal/handlers"
	"github.com/genzdict/battlegate/internal/middleware"
	"github.com/genzdict/battlegate/internal/notify"
	"github.com/genzdict/battlegate/internal/store"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx := context.Background()
	broker := notify.NewBroker(logger)

	// With the postgres backend, commits go out via redis pub/sub and come
	// back through the bridge, so subscribers on every instance see them.
	// The memory backend is single-instance and feeds the broker directly.
	var docStore store.Store
	if os.Getenv("STORE_BACKEND") == "memory" {
		docStore = store.NewMemory(broker)
		logger.Warn("using in-memory document store; writes will not survive restarts")
	} else {
		database.ConnectDB()
		if err := database.Migrate(ctx); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		rdb, err := notify.ConnectRedis()
		if err != nil {
			log.Fatalf("redis connect error: %v", err)
		}
		go notify.RunBridge(ctx, rdb, broker, logger)
		docStore = store.NewPostgres(database.DB, notify.NewRedis(rdb, logger))
	}

	gw := handlers.NewGateway(docStore, broker, logger)

	mux := http.NewServeMux()

	// identity endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler(gw))
	mux.HandleFunc("/user/login", handlers.LoginHandler)

	// document API
	mux.Handle("/docs/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.DocsHandler(gw),
	)))

	// change-notification websocket
	mux.Handle("/watch/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WatchWSHandler(logger, gw),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
