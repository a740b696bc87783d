// cmd/auditor/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/auditor"
	"github.com/genzdict/battlegate/internal/database"
	"github.com/genzdict/battlegate/internal/notify"
)

func main() {
	logger := logrus.New()

	database.ConnectDB()
	if err := database.Migrate(context.Background()); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	rdb, err := notify.ConnectRedis()
	if err != nil {
		log.Fatalf("redis connect error: %v", err)
	}

	svc := auditor.New(database.DB, rdb, notify.NewRedis(rdb, logger))
	go svc.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	svc.Stop()
	log.Println("auditor shutdown complete")
}
