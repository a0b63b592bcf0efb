package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/voss-dev/forumsync/internal/server/handlers"
	"github.com/voss-dev/forumsync/internal/server/ratelimit"
	"github.com/voss-dev/forumsync/internal/server/storage"
	"github.com/voss-dev/forumsync/internal/server/ws"
)

func main() {
	godotenv.Load()

	store := storage.New()
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		log.Fatal("Failed to initialize schema:", err)
	}

	limiter := ratelimit.New()
	hub := ws.NewHub(store)
	go hub.Run()

	api := handlers.New(store, hub, limiter)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("forumsync server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, api.Routes()); err != nil {
		log.Fatal(err)
	}
}
