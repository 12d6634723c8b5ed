package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"eventroom-backend/internal/auth"
	"eventroom-backend/internal/cache"
	"eventroom-backend/internal/config"
	"eventroom-backend/internal/handler"
	"eventroom-backend/internal/room"
	"eventroom-backend/internal/store"
)

// Deps 서버가 사용하는 외부 의존성
type Deps struct {
	DB      *gorm.DB
	Repo    *store.Repository
	Hub     *room.Hub
	Redis   *cache.RedisClient // nil이면 채팅 보관/분산 rate limit 비활성화
	Archive *cache.ChatArchive // /health에 보관 통계 노출 (nil 허용)
}

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	jwtManager    *auth.JWTManager
	limiterStore  fiber.Storage
	eventHandler  *handler.EventHandler
	ticketHandler *handler.TicketHandler
	scoreHandler  *handler.ScoreHandler
	roomHandler   *handler.RoomHandler
	roomWSHandler *handler.RoomWSHandler
	healthHandler *handler.HealthHandler
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:       "Event Room Backend",
		ServerHeader:  "Fiber",
		CaseSensitive: true,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		Prefork:       false, // WebSocket과 호환성 문제로 비활성화
		BodyLimit:     1 * 1024 * 1024,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	s := &Server{
		app:           app,
		cfg:           cfg,
		jwtManager:    jwtManager,
		eventHandler:  handler.NewEventHandler(deps.Repo),
		ticketHandler: handler.NewTicketHandler(deps.Repo),
		scoreHandler:  handler.NewScoreHandler(deps.Repo),
		roomWSHandler: handler.NewRoomWSHandler(deps.Hub, handler.RoomWSConfig{
			SendBufferSize: cfg.Room.SendBufferSize,
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
		}),
	}

	// Redis가 없으면 nil 인터페이스를 넘겨야 핸들러가 not_configured로 판단한다
	if deps.Redis != nil {
		s.roomHandler = handler.NewRoomHandler(deps.Hub, deps.Redis)
		s.healthHandler = handler.NewHealthHandler(deps.DB, deps.Redis, deps.Hub)
		if deps.Archive != nil {
			s.healthHandler.WithArchive(deps.Archive)
		}
		s.limiterStore = cache.NewLimiterStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		log.Printf("✅ Rate limiter using Redis storage (%s)", cfg.Redis.Addr)
	} else {
		s.roomHandler = handler.NewRoomHandler(deps.Hub, nil)
		s.healthHandler = handler.NewHealthHandler(deps.DB, nil, deps.Hub)
		log.Println("ℹ️ Redis not configured (in-memory rate limiter, chat archive disabled)")
	}

	return s
}

// App 내부 Fiber 앱 (테스트용)
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// 쓰기 API용 Rate Limiter (Redis 설정 시 인스턴스 간 공유)
	writeLimiter := limiter.New(limiter.Config{
		Max:        s.cfg.Server.RateLimitMax,
		Expiration: 1 * time.Minute,
		Storage:    s.limiterStore,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	requireAuth := auth.AuthMiddleware(s.jwtManager)
	requireAdmin := auth.RequireAdmin()

	// Event 라우트 그룹
	events := s.app.Group("/api/events")
	events.Post("/", requireAuth, requireAdmin, s.eventHandler.CreateEvent)
	events.Get("/:eventId", s.eventHandler.GetEvent)
	events.Post("/:eventId/participants", writeLimiter, s.eventHandler.Register)
	events.Get("/:eventId/participants", s.eventHandler.ListParticipants)

	// Ticket / Winner 라우트
	events.Post("/:eventId/tickets", writeLimiter, s.ticketHandler.IssueTicket)
	events.Get("/:eventId/tickets", s.ticketHandler.ListTickets)
	events.Post("/:eventId/winner", requireAuth, requireAdmin, s.ticketHandler.SelectWinner)
	events.Get("/:eventId/winner", s.ticketHandler.GetWinner)

	// Score 라우트
	scores := s.app.Group("/api/scores")
	scores.Get("/:eventId/:userId", s.scoreHandler.GetScore)
	scores.Put("/:eventId/:userId", writeLimiter, s.scoreHandler.SaveScore)

	// Room 운영 라우트
	rooms := s.app.Group("/api/rooms")
	rooms.Get("/", s.roomHandler.ListRooms)
	rooms.Get("/:kind/:roomId", s.roomHandler.GetRoom)
	rooms.Delete("/:kind/:roomId", requireAuth, requireAdmin, s.roomHandler.CloseRoom)
	rooms.Get("/:kind/:roomId/chat", s.roomHandler.GetChat)
	rooms.Delete("/:kind/:roomId/participants/:identity", requireAuth, requireAdmin, s.roomHandler.RemoveParticipant)

	// WebSocket 룸 엔드포인트 (JWT 선택, 없으면 userId 쿼리)
	s.app.Get("/ws/rooms/:kind/:roomId",
		auth.OptionalAuthMiddleware(s.jwtManager),
		s.roomWSHandler.Upgrade,
		websocket.New(s.roomWSHandler.Handle, websocket.Config{
			ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
		}),
	)
}

// Start 서버 시작 (블로킹)
func (s *Server) Start() error {
	log.Printf("🚀 Event Room Backend starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/rooms/:kind/:roomId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
