package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"memoria/pkg/logging"

	"gopkg.in/yaml.v3"
)

// DefaultMongoURI 本地开发默认连接（不包含任何凭据）
const DefaultMongoURI = "mongodb://localhost:27017"

// Load 加载配置
// 1. 加载 .env.{env}（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 {env}.yaml
// 3. 环境变量覆盖，构建最终配置
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)
	// .env 中可能重新指定 APP_ENV
	env = parseEnv(getEnv("APP_ENV", string(env)))

	yamlCfg := loadYAMLConfig(env)
	applyEnvOverrides(&yamlCfg.YAMLConfig)

	driver := detectDatabaseDriver(yamlCfg.Database.Driver, yamlCfg.Database.URI)
	yamlCfg.Database.Driver = driver

	cfg := &Config{
		Env:                  env,
		DatabaseDriver:       driver,
		DatabaseURL:          buildDatabaseURL(yamlCfg.Database, yamlCfg.Database.Password),
		DatabaseDBName:       yamlCfg.Database.Name,
		DatabaseTransactions: yamlCfg.Database.Transactions,
		APIPort:              yamlCfg.APIServer.Port,
		APIServer:            yamlCfg.APIServer,
		Auth:                 yamlCfg.Auth,
		MinIO:                yamlCfg.MinIO,
		Mail:                 yamlCfg.Mail,
		Log: logging.Config{
			Level:     yamlCfg.Log.Level,
			Format:    yamlCfg.Log.Format,
			Component: "memoria",
		},
		ConfigFilePath: yamlCfg.loadedFrom,
	}
	if yamlCfg.Redis.Enabled || yamlCfg.Redis.URL != "" {
		cfg.RedisURL = buildRedisURL(yamlCfg.Redis)
	}

	if len(cfg.Auth.Admins) == 0 {
		log.Printf("WARNING: ADMIN_CREDENTIALS not set, admin login is disabled")
	}
	return cfg
}

// defaultYAMLConfig 代码默认值
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		APIServer: APIServerConfig{
			Port:         "8080",
			PublicURL:    "http://localhost:3000",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "mongodb",
			Host:    "localhost",
			Port:    27017,
			Name:    "Memoria",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		MinIO: MinIOConfig{Bucket: "memoria-exports"},
		Auth: AuthConfig{
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "168h",
		},
		Mail: MailConfig{
			Provider:  "console",
			FromEmail: "no-reply@memoria.local",
			FromName:  "Memoria",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	path := findConfigFileForEnv(env)
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("WARNING: read config %s failed: %v", path, err)
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
		log.Printf("WARNING: parse config %s failed: %v", path, err)
		return cfg
	}
	cfg.loadedFrom = path
	return cfg
}

// applyEnvOverrides 环境变量覆盖（凭据只在此处注入）
func applyEnvOverrides(c *YAMLConfig) {
	if v := os.Getenv("API_PORT"); v != "" {
		c.APIServer.Port = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.APIServer.PublicURL = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.APIServer.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("WEB_DIR"); v != "" {
		c.APIServer.WebDir = v
	}
	if v := os.Getenv("DEV_FRONTEND_URL"); v != "" {
		c.APIServer.DevFrontend = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	c.Database.URI = os.Getenv("MONGODB_URI")
	c.Database.Password = firstEnv("DB_PASSWORD", "POSTGRES_PASSWORD")
	if v := firstEnv("DB_NAME", "MONGODB_DB"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DB_TRANSACTIONS"); v != "" {
		c.Database.Transactions = parseBool(v)
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.MinIO.Endpoint = v
	}
	c.MinIO.AccessKey = firstEnv("MINIO_ACCESS_KEY", "MINIO_ROOT_USER")
	c.MinIO.SecretKey = firstEnv("MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.Admins = parseAdminCredentials(os.Getenv("ADMIN_CREDENTIALS"))

	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		c.Mail.Provider = v
	}
	c.Mail.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// parseAdminCredentials 解析 "email:password;email2:password2"
func parseAdminCredentials(raw string) []AdminCredential {
	var out []AdminCredential
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, password, ok := strings.Cut(pair, ":")
		if !ok || email == "" || password == "" {
			log.Printf("WARNING: ignore malformed ADMIN_CREDENTIALS entry")
			continue
		}
		out = append(out, AdminCredential{
			Email:    strings.ToLower(strings.TrimSpace(email)),
			Password: password,
		})
	}
	return out
}

// AccessTTL 解析 access token 有效期
func (a AuthConfig) AccessTTL() time.Duration {
	return parseDurationOr(a.AccessTokenTTL, 15*time.Minute)
}

// RefreshTTL 解析 refresh token 有效期
func (a AuthConfig) RefreshTTL() time.Duration {
	return parseDurationOr(a.RefreshTokenTTL, 7*24*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Name: %s, Redis: %s, MinIO: %t, Mail: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), c.DatabaseDBName,
		maskPassword(c.RedisURL), c.MinIO.Enabled(), c.Mail.Provider)
}
