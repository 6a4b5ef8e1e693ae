package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            string
	Environment     string
	DatabasePath    string
	JWTSecret       string
	CORSOrigins     string
	MaxUploadSize   int64
	FileStoragePath string
	GoogleClientID  string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	LogLevel        string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "5003"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/chatspace.db"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key"),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		MaxUploadSize:   parseInt64(getEnv("MAX_UPLOAD_SIZE", "524288000")), // 500MB default
		FileStoragePath: getEnv("FILE_STORAGE_PATH", "./data/uploads"),
		GoogleClientID:  getEnv("GOOGLE_CLIENT_ID", ""),
		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 524288000
	}
	return val
}
