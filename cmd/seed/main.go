// Command main runs the database seeder for Quill.
package main

import (
	"context"
	"flag"
	"log"

	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	presetPath := flag.String("preset", "", "Path to a YAML seeder preset (overrides -users and -posts)")
	randomSeed := flag.Int64("seed", 0, "Random seed for reproducible data (0 picks one)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	preset := seed.DefaultPreset()
	if *presetPath != "" {
		loaded, err := seed.LoadPreset(*presetPath)
		if err != nil {
			log.Fatalf("❌ Preset loading failed: %v", err)
		}
		preset = loaded
		log.Printf("Applying preset: %s (ignoring -users and -posts)\n", preset.Name)
	} else {
		preset.Users = *numUsers
		if *numUsers > 0 {
			preset.PostsPerUser = *numPosts / *numUsers
		}
		log.Printf("Target: %d users, %d posts, clean=%v\n", preset.Users, preset.Users*preset.PostsPerUser, *shouldClean)
	}
	if *randomSeed != 0 {
		preset.Seed = *randomSeed
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, cfg.CommentMaxDepth)

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	summary, err := s.Run(ctx, preset)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d users, %d posts, %d comments, %d votes, %d follows.\n",
		summary.Users, summary.Posts, summary.Comments, summary.Votes, summary.Follows)
	log.Printf("📧 All test users have the password: %s\n", seed.DefaultPassword)
}
