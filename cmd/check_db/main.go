package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/joho/godotenv"

	"eventroom-backend/internal/config"
	"eventroom-backend/internal/database"
	"eventroom-backend/internal/store"
)

// 운영 점검용: DB 연결 확인 후 테이블별 행 수 출력
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	cfg := config.LoadDatabase()

	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println()

	repo, err := store.New(db)
	if err != nil {
		log.Fatal("Failed to init store:", err)
	}

	counts, err := repo.TableCounts(context.Background())
	if err != nil {
		log.Fatal("Failed to count rows:", err)
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("📋 Table row counts:")
	for _, name := range names {
		fmt.Printf("  %-14s %d\n", name, counts[name])
	}
}
