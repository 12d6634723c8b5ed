package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"eventroom-backend/internal/cache"
	"eventroom-backend/internal/config"
	"eventroom-backend/internal/database"
	"eventroom-backend/internal/room"
	"eventroom-backend/internal/server"
	"eventroom-backend/internal/store"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	if err := database.Ping(db); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}

	repo, err := store.New(db)
	if err != nil {
		log.Fatalf("❌ Store init failed: %v", err)
	}

	// Redis 연결 (선택)
	var redisClient *cache.RedisClient
	var archive *cache.ChatArchive
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️ Redis unavailable: %v (chat archive disabled)", err)
			redisClient = nil
		} else {
			archive = cache.NewChatArchive(redisClient, cfg.Redis.ArchiveBuffer, cfg.Redis.ChatArchiveTTL)
			log.Printf("✅ Redis connected (%s)", cfg.Redis.Addr)
		}
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())

	if archive != nil {
		go archive.Run(bgCtx)
	}

	// 룸 허브
	hub := room.NewHub(roomOptions(cfg.Room, archive))
	go hub.RunJanitor(bgCtx, cfg.Room.JanitorInterval, cfg.Room.IdleTTL)

	// 서버 생성 및 설정
	srv := server.New(cfg, server.Deps{
		DB:      db,
		Repo:    repo,
		Hub:     hub,
		Redis:   redisClient,
		Archive: archive,
	})
	srv.SetupMiddleware()
	srv.SetupRoutes()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 종료 순서: HTTP 서버 → 룸 → 백그라운드 작업(채팅 보관 flush) → 외부 연결
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"server": func(ctx context.Context) error {
				log.Println("🛑 Shutting down server...")
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}
				if err := hub.Shutdown(ctx); err != nil {
					return err
				}
				stopBackground()
				if archive != nil {
					select {
					case <-archive.Done():
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						log.Printf("⚠️ Redis close failed: %v", err)
					}
				}
				return database.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("👋 Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// roomOptions 설정값으로 룸 종류별 옵션 생성
func roomOptions(rc config.RoomConfig, archive *cache.ChatArchive) room.OptionsFunc {
	return func(kind room.Kind) room.Options {
		opts := room.DefaultOptions(kind)
		if rc.MailboxSize > 0 {
			opts.MailboxSize = rc.MailboxSize
		}
		opts.NotifyRejections = rc.NotifyRejections
		opts.ReplayChat = rc.ReplayChat

		retain := rc.GenericRetainOnLeave
		switch kind {
		case room.KindGame:
			retain = rc.GameRetainOnLeave
		case room.KindChosen:
			retain = rc.ChosenRetainOnLeave
		}
		if retain {
			opts.Disconnect = room.RetainOnDisconnect
		} else {
			opts.Disconnect = room.RemoveOnDisconnect
		}

		if archive != nil {
			opts.Archiver = archive
		}
		return opts
	}
}
