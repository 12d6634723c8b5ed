package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Room      RoomConfig
}

// RedisConfig Redis 설정 (Addr가 비어 있으면 비활성화)
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	ChatArchiveTTL time.Duration
	ArchiveBuffer  int
}

// DatabaseConfig 데이터베이스 설정
type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
	Path     string // sqlite 파일 경로
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitMax    int // 분당 IP별 쓰기 요청 수
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
}

// RoomConfig 룸 코디네이터 설정
type RoomConfig struct {
	MailboxSize          int
	SendBufferSize       int
	IdleTTL              time.Duration // 0이면 빈 룸을 정리하지 않음
	JanitorInterval      time.Duration
	NotifyRejections     bool
	ReplayChat           bool
	GameRetainOnLeave    bool
	ChosenRetainOnLeave  bool
	GenericRetainOnLeave bool
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimitMax:    getInt("RATE_LIMIT_MAX", 60),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 12*time.Hour),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getInt("REDIS_DB", 0),
			ChatArchiveTTL: getDuration("CHAT_ARCHIVE_TTL", 24*time.Hour),
			ArchiveBuffer:  getInt("CHAT_ARCHIVE_BUFFER", 256),
		},
		Database: LoadDatabase(),
		Room: RoomConfig{
			MailboxSize:          getInt("ROOM_MAILBOX_SIZE", 256),
			SendBufferSize:       getInt("ROOM_SEND_BUFFER_SIZE", 64),
			IdleTTL:              getDuration("ROOM_IDLE_TTL", 0),
			JanitorInterval:      getDuration("ROOM_JANITOR_INTERVAL", time.Minute),
			NotifyRejections:     getBool("ROOM_NOTIFY_REJECTIONS", false),
			ReplayChat:           getBool("ROOM_REPLAY_CHAT", false),
			GameRetainOnLeave:    getBool("ROOM_GAME_RETAIN_ON_DISCONNECT", true),
			ChosenRetainOnLeave:  getBool("ROOM_CHOSEN_RETAIN_ON_DISCONNECT", true),
			GenericRetainOnLeave: getBool("ROOM_GENERIC_RETAIN_ON_DISCONNECT", false),
		},
	}
}

// LoadDatabase DB 설정만 로드 (점검 도구용)
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "postgres"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "postgres"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		Path:     getEnv("DB_PATH", "eventroom.db"),
	}
}

// getRequiredEnv 필수 환경 변수 조회 (없으면 Fatal)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
