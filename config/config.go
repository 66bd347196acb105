package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with simple defaults.
type Config struct {
	ListenAddr string

	FFmpegPath    string
	FFmpegTimeout time.Duration // 单个分辨率转码的超时时间，0表示不限制
	MediaRoot     string        // 媒体根目录，videos/ thumbnails/ hls/ 都在这下面
	VideoDir      string        // MediaRoot/videos
	ThumbnailDir  string        // MediaRoot/thumbnails

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ActivationTokenTTL time.Duration // 激活/重置链接的有效期

	// 邮件配置，SMTP_HOST为空时退化为日志输出
	SMTPHost    string
	SMTPPort    string
	SMTPUser    string
	SMTPPass    string
	MailFrom    string
	FrontendURL string // 激活/重置链接指向的前端地址

	WorkerCount int

	// MinIO配置，可选的源文件归档
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvMinutes parses an environment variable as a number of minutes.
func getEnvMinutes(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Minute
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	mediaRoot := getEnv("MEDIA_ROOT", "media")

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFmpegTimeout: getEnvMinutes("FFMPEG_TIMEOUT_MINUTES", 30),
		MediaRoot:     mediaRoot,
		VideoDir:      filepath.Join(mediaRoot, "videos"),
		ThumbnailDir:  filepath.Join(mediaRoot, "thumbnails"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // for the password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "videoflix"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:          getEnv("JWT_SECRET", "videoflix-dev-secret"),
		AccessTokenTTL:     getEnvMinutes("ACCESS_TOKEN_TTL_MINUTES", 30),
		RefreshTokenTTL:    getEnvMinutes("REFRESH_TOKEN_TTL_MINUTES", 7*24*60),
		ActivationTokenTTL: getEnvMinutes("ACTIVATION_TOKEN_TTL_MINUTES", 24*60),

		SMTPHost:    getEnv("SMTP_HOST", ""),
		SMTPPort:    getEnv("SMTP_PORT", "587"),
		SMTPUser:    getEnv("SMTP_USER", ""),
		SMTPPass:    getEnv("SMTP_PASS", ""),
		MailFrom:    getEnv("MAIL_FROM", "noreply@videoflix.local"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:4200"),

		WorkerCount: getEnvInt("WORKER_COUNT", 2),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "videoflix-sources"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}
