// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码默认值
//
// 凭据单一数据源：
//
//	密码/密钥（MONGODB_URI 中的账号、DB_PASSWORD、JWT_SECRET、ADMIN_CREDENTIALS、
//	SENDGRID_API_KEY、MINIO_ACCESS_KEY/MINIO_SECRET_KEY）只从环境变量读取，
//	YAML 与代码中不出现任何凭据字面量。
//
// 配置路径确定策略：
//  1. --config 命令行参数（显式路径）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/memoria/
//     - dev/test → ./configs/
package config

import (
	"time"

	"memoria/pkg/logging"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	APIServer APIServerConfig `yaml:"api_server"` // API Server（端口 + 超时）
	Database  DatabaseConfig  `yaml:"database"`   // 数据库
	Redis     RedisConfig     `yaml:"redis"`      // Redis（缓存 + 失效事件）
	MinIO     MinIOConfig     `yaml:"minio"`      // MinIO 对象存储（年鉴导出）
	Auth      AuthConfig      `yaml:"auth"`       // 认证
	Mail      MailConfig      `yaml:"mail"`       // 邮件（找回密码）
	Log       LogConfig       `yaml:"log"`        // 日志
}

// APIServerConfig API Server 配置
type APIServerConfig struct {
	Port         string        `yaml:"port"`
	PublicURL    string        `yaml:"public_url"` // 对外访问地址（重置密码链接使用）
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	WebDir       string        `yaml:"web_dir"`      // 前端构建产物目录，为空时只提供 API
	DevFrontend  string        `yaml:"dev_frontend"` // 开发模式前端地址，非 API 请求反向代理过去
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "mongodb"（默认）、"sqlite" 或 "postgres"
	Path         string `yaml:"path"`   // SQLite 文件路径
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	URI          string `yaml:"-"`            // 只从 MONGODB_URI 环境变量读取（URI 中可能包含凭据）
	Transactions bool   `yaml:"transactions"` // MongoDB 是否启用多文档事务（需要副本集）
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000，为空表示不启用
	AccessKey string `yaml:"-"`        // 只从 MINIO_ACCESS_KEY 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_SECRET_KEY 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// Enabled MinIO 是否已配置
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != "" && m.AccessKey != "" && m.SecretKey != ""
}

// AdminCredential 管理员登录凭据（来自 ADMIN_CREDENTIALS）
type AdminCredential struct {
	Email    string
	Password string
}

// AuthConfig 认证配置
// 注意：JWTSecret/Admins 只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret       string            `yaml:"-"`                 // 只从 JWT_SECRET 环境变量读取
	AccessTokenTTL  string            `yaml:"access_token_ttl"`  // 例如 "15m"
	RefreshTokenTTL string            `yaml:"refresh_token_ttl"` // 例如 "168h"
	Admins          []AdminCredential `yaml:"-"`                 // 只从 ADMIN_CREDENTIALS 环境变量读取
}

// MailConfig 邮件配置
type MailConfig struct {
	Provider       string `yaml:"provider"` // "console"（默认）或 "sendgrid"
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	SendGridAPIKey string `yaml:"-"` // 只从 SENDGRID_API_KEY 环境变量读取
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // json/text
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env                  Environment
	DatabaseDriver       string // "mongodb", "sqlite" 或 "postgres"
	DatabaseURL          string
	DatabaseDBName       string // MongoDB 数据库名称，默认 Memoria
	DatabaseTransactions bool
	RedisURL             string // 为空表示不启用 Redis
	APIPort              string
	APIServer            APIServerConfig
	Auth                 AuthConfig
	MinIO                MinIOConfig
	Mail                 MailConfig
	Log                  logging.Config
	ConfigFilePath       string // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
