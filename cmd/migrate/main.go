// Command migrate applies the schema. Production servers skip automatic
// migration, so deployments run this first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/seed"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|categories>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dialector, err := database.Dialector(cfg)
	if err != nil {
		return err
	}
	conn, err := database.Open(dialector)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.Migrate(conn); err != nil {
			return err
		}
		log.Println("schema migrated")
	case "categories":
		categories, err := seed.Categories(context.Background(), conn)
		if err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
		log.Printf("%d built-in categories present", len(categories))
	default:
		return usage()
	}
	return nil
}
