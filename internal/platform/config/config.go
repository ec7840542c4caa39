package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	PostgresURL     string
	Redis           RedisConfig
	Kafka           KafkaConfig
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration
}

// RedisConfig holds connection settings for the token revocation list.
// An empty URL disables Redis and revocation checks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit fan-out. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SOLICITUDES_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("SOLICITUDES_AUDIT_TOPIC")
	if topic == "" {
		topic = "solicitudes.audit"
	}

	var brokers []string
	if raw := os.Getenv("SOLICITUDES_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:        addr,
		PostgresURL: os.Getenv("SOLICITUDES_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("SOLICITUDES_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
		JWTSigningKey:   jwtSigningKey,
		JWTIssuer:       "solicitudes",
		JWTAudience:     "solicitudes-api",
		ShutdownTimeout: 10 * time.Second,
	}
}
