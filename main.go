package main

import (
	"log"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rcsullivanii/flick-finder/config"
	"github.com/rcsullivanii/flick-finder/db"
	api "github.com/rcsullivanii/flick-finder/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbService, err := db.Open("mysql", cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbService.Close()

	api.ExposeAPI(dbService, cfg)
}
