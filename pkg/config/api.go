package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment       string
	LogLevel          string
	LogFormat         string
	Addr              string
	StoreBackend      string
	DatabaseURL       string
	MigrationsDir     string
	JWTSecret         string
	AccessTokenTTL    time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	PresenceBuffer    int
	PresenceFrameRate time.Duration
	WriteRateLimit    int
	WriteRateWindow   time.Duration
	RequestTimeout    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:       GetString("APP_ENV", "development"),
		LogLevel:          GetString("LOG_LEVEL", "info"),
		LogFormat:         GetString("LOG_FORMAT", "json"),
		Addr:              GetString("API_ADDR", ":4000"),
		StoreBackend:      GetString("STORE_BACKEND", "postgres"),
		DatabaseURL:       GetString("DATABASE_URL", "postgres://deskpulse:deskpulse@db:5432/deskpulse?sslmode=disable"),
		MigrationsDir:     GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:         GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:    time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		RedisAddr:         GetString("REDIS_ADDR", ""),
		RedisPassword:     GetString("REDIS_PASSWORD", ""),
		RedisDB:           GetInt("REDIS_DB", 0),
		PresenceBuffer:    GetInt("PRESENCE_BUFFER", 64),
		PresenceFrameRate: GetDuration("PRESENCE_MIN_FRAME_INTERVAL", 50*time.Millisecond),
		WriteRateLimit:    GetInt("WRITE_RATE_LIMIT", 120),
		WriteRateWindow:   time.Duration(GetInt("WRITE_RATE_WINDOW_SECONDS", 60)) * time.Second,
		RequestTimeout:    GetDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}
