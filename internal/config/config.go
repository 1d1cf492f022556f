package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 定义临时邮箱的核心业务配置
type MailboxConfig struct {
	AllowedDomains  []string      // 允许创建邮箱的域名列表
	DefaultTTL      time.Duration // 邮箱默认生存时间，过期后不再收信并被清理
	MaxPerIP        int           // 单个 IP 地址最多可创建的邮箱数量
	CleanupInterval time.Duration // 过期邮箱清理任务的执行间隔
}

// SMTPConfig 定义入站 SMTP 服务器的配置
type SMTPConfig struct {
	BindAddr        string        // SMTP 服务监听地址，格式 "host:port"，默认 ":2525"
	Hostname        string        // 问候语中使用的主机名
	MaxMessageBytes int64         // 单封邮件最大字节数
	MaxLineBytes    int           // 单行最大字节数（命令行与数据行共用上限）
	MaxConnections  int           // 最大并发连接数
	AcceptPerSecond int           // 每秒最多接受的新连接数
	IdleTimeout     time.Duration // 连接空闲超时
	Workers         int           // 投递协程池大小
	QueueSize       int           // 投递任务队列长度
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空表示只输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis 地址解析缓存
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
	CacheTTL time.Duration
}

// AdminConfig 定义管理接口的认证配置
type AdminConfig struct {
	PasswordHash string        // 管理密码的 bcrypt 哈希，留空时禁用管理接口
	JWTSecret    string        // 管理令牌签名密钥
	TokenExpiry  time.Duration // 管理令牌有效期
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Admin    AdminConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPBOX_
// 例如: TEMPBOX_SERVER_HOST, TEMPBOX_SMTP_BIND_ADDR
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("tempbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mailbox.allowed_domains", "tempbox.dev")
	viper.SetDefault("mailbox.default_ttl", "1h")
	viper.SetDefault("mailbox.max_per_ip", 5)
	viper.SetDefault("mailbox.cleanup_interval", "10m")
	viper.SetDefault("smtp.bind_addr", ":2525")
	viper.SetDefault("smtp.hostname", "tempbox.dev")
	viper.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	viper.SetDefault("smtp.max_line_bytes", 8192)
	viper.SetDefault("smtp.max_connections", 100)
	viper.SetDefault("smtp.accept_per_second", 20)
	viper.SetDefault("smtp.idle_timeout", "2m")
	viper.SetDefault("smtp.workers", 8)
	viper.SetDefault("smtp.queue_size", 64)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cache_ttl", "1m")
	viper.SetDefault("admin.password_hash", "")
	viper.SetDefault("admin.jwt_secret", "")
	viper.SetDefault("admin.token_expiry", "30m")

	defaultTTL, err := time.ParseDuration(viper.GetString("mailbox.default_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.default_ttl: %w", err)
	}

	cleanupInterval, err := time.ParseDuration(viper.GetString("mailbox.cleanup_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.cleanup_interval: %w", err)
	}

	domainList := parseDomains(viper.GetString("mailbox.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("mailbox.allowed_domains must not be empty")
	}

	maxPerIP := viper.GetInt("mailbox.max_per_ip")
	if maxPerIP <= 0 {
		maxPerIP = 5
	}

	idleTimeout, err := time.ParseDuration(viper.GetString("smtp.idle_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid smtp.idle_timeout: %w", err)
	}

	maxMessageBytes := viper.GetInt64("smtp.max_message_bytes")
	if maxMessageBytes <= 0 {
		return nil, fmt.Errorf("smtp.max_message_bytes must be positive")
	}

	maxLineBytes := viper.GetInt("smtp.max_line_bytes")
	if maxLineBytes <= 0 {
		return nil, fmt.Errorf("smtp.max_line_bytes must be positive")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("redis.cache_ttl"))
	if err != nil {
		cacheTTL = time.Minute
	}

	tokenExpiry, err := time.ParseDuration(viper.GetString("admin.token_expiry"))
	if err != nil {
		tokenExpiry = 30 * time.Minute
	}

	adminHash := viper.GetString("admin.password_hash")
	adminSecret := viper.GetString("admin.jwt_secret")
	if adminHash != "" && len(adminSecret) < 32 {
		return nil, fmt.Errorf("admin.jwt_secret must be at least 32 characters when admin access is enabled")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			AllowedDomains:  domainList,
			DefaultTTL:      defaultTTL,
			MaxPerIP:        maxPerIP,
			CleanupInterval: cleanupInterval,
		},
		SMTP: SMTPConfig{
			BindAddr:        viper.GetString("smtp.bind_addr"),
			Hostname:        viper.GetString("smtp.hostname"),
			MaxMessageBytes: maxMessageBytes,
			MaxLineBytes:    maxLineBytes,
			MaxConnections:  viper.GetInt("smtp.max_connections"),
			AcceptPerSecond: viper.GetInt("smtp.accept_per_second"),
			IdleTimeout:     idleTimeout,
			Workers:         viper.GetInt("smtp.workers"),
			QueueSize:       viper.GetInt("smtp.queue_size"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			CacheTTL: cacheTTL,
		},
		Admin: AdminConfig{
			PasswordHash: adminHash,
			JWTSecret:    adminSecret,
			TokenExpiry:  tokenExpiry,
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 如果文件不存在则静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
