package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/andremotz/katzenschreck/internal/repository/sqlite"
	"github.com/andremotz/katzenschreck/internal/service/storage"
	flag "github.com/spf13/pflag"
)

func main() {
	artifactsDir := flag.String("artifacts", "results", "Directory containing detection artifacts")
	dbPath := flag.String("db", "data/katzenschreck.db", "Database path")
	flag.Parse()

	fmt.Printf("Indexing artifacts from %s into database %s\n", *artifactsDir, *dbPath)

	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewArtifactRepository(db)

	artifacts, skipped, err := storage.ScanDetections(*artifactsDir)
	if err != nil {
		log.Fatalf("Failed to scan artifacts: %v", err)
	}
	if len(artifacts) == 0 {
		fmt.Println("No artifacts found to index")
		return
	}

	inserted, known := 0, 0
	for i := range artifacts {
		existing, err := repo.GetByFilename(artifacts[i].Filename)
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", artifacts[i].Filename, err)
			skipped++
			continue
		}
		if existing != nil {
			known++
			continue
		}
		if _, err := repo.Insert(&artifacts[i]); err != nil {
			log.Printf("⚠️  Failed to insert %s: %v", artifacts[i].Filename, err)
			skipped++
			continue
		}
		inserted++
	}

	fmt.Printf("✅ Indexed %d artifacts (%d already known)\n", inserted, known)
	if skipped > 0 {
		fmt.Printf("⚠️  Skipped %d files (invalid name or errors)\n", skipped)
	}

	counts, err := repo.CountByClass()
	if err == nil {
		fmt.Printf("\n📊 Index Statistics:\n")
		for class, count := range counts {
			fmt.Printf("   %s: %d artifacts\n", class, count)
		}
	}
}
