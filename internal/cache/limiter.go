package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	fiberredis "github.com/gofiber/storage/redis/v3"
)

// NewLimiterStorage rate limiter 카운터를 Redis에 저장하는 fiber.Storage.
// 호출 전에 Redis 연결이 확인되어 있어야 한다 (연결 실패 시 패닉).
func NewLimiterStorage(addr, password string, db int) fiber.Storage {
	host, port := parseRedisAddr(addr)
	return fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: db,
		PoolSize: 10,
	})
}

func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
