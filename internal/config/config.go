package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// Push channel (WebSocket) Configuration
	Push PushConfig `json:"push"`

	// Client-side Configuration
	Client ClientConfig `json:"client"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"` // development, staging, production
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// PushConfig contains push-channel (WebSocket) configuration
type PushConfig struct {
	SendBufferSize    int           `json:"send_buffer_size"`   // per-client outbound queue
	WriteTimeout      time.Duration `json:"write_timeout"`      // single frame write deadline
	HeartbeatInterval time.Duration `json:"heartbeat_interval"` // server ping cadence
	JWTRequired       bool          `json:"jwt_required"`       // verify handshake tokens
}

// ClientConfig contains connection-manager and fallback-channel configuration
type ClientConfig struct {
	ServerURL         string        `json:"server_url"`
	ReconnectRetries  int           `json:"reconnect_retries"`
	ReconnectDelay    time.Duration `json:"reconnect_delay"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"` // liveness ping cadence; a failed pong is a disconnect
	StateDir          string        `json:"state_dir"`          // read-state ledger files live here
}

// LoadConfig builds a Config from environment variables with sane defaults.
// Callers load .env themselves (godotenv in mains) before calling this.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvOrDefault("SERVER_PORT", "7005"),
			ReadTimeout:  getEnvIntOrDefault("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 15),
			Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnvOrDefault("DB_HOST", "localhost"),
			Port:         getEnvOrDefault("DB_PORT", "3306"),
			Username:     getEnvOrDefault("DB_USER", "gochat"),
			Password:     getEnvOrDefault("DB_PASSWORD", "gochat123"),
			DatabaseName: getEnvOrDefault("DB_NAME", "gochat_db"),
			MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		},
		Push: PushConfig{
			SendBufferSize:    getEnvIntOrDefault("PUSH_SEND_BUFFER", 256),
			WriteTimeout:      5 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			JWTRequired:       getEnvOrDefault("PUSH_JWT_REQUIRED", "false") == "true",
		},
		Client: ClientConfig{
			ServerURL:        getEnvOrDefault("CHAT_SERVER_URL", "http://localhost:7005"),
			ReconnectRetries: getEnvIntOrDefault("CLIENT_RECONNECT_RETRIES", 5),
			ReconnectDelay:   3 * time.Second,
			RequestTimeout:   10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			StateDir:         getEnvOrDefault("CLIENT_STATE_DIR", "."),
		},
	}
}

// DSN builds the MySQL connection string from the database section.
func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
