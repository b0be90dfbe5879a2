package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	arkembedding "github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Embedding EmbeddingConfig
	Knowledge KnowledgeConfig
	Session   SessionConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// Load 从环境变量加载配置。缺少模型凭证不算错误，由调用方决定如何降级。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	knowledge, err := loadKnowledgeConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Embedding: loadEmbeddingConfig(ai),
		Knowledge: knowledge,
		Session:   session,
		Log:       logCfg,
		RateLimit: rateLimit,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	IntentHistory int
}

// Enabled 表示是否提供了调用所需的密钥和模型名。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and ARK_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		// 默认温度为 0，分类结果保持稳定。
		zero := 0.0
		temperature = &zero
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	intentHistory := 3
	if override, err := parseOptionalIntEnv("AI_INTENT_HISTORY"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			intentHistory = 1
		} else {
			intentHistory = *override
		}
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         modelName,
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", defaultArkBaseURL),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		IntentHistory: intentHistory,
	}, nil
}

// EmbeddingConfig 描述知识库检索使用的可选向量模型。
type EmbeddingConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled 表示是否配置了向量模型。
func (c EmbeddingConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewEmbedder 使用配置创建 Ark 向量模型。
func (c EmbeddingConfig) NewEmbedder(ctx context.Context) (embedding.Embedder, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("embedding model not configured: set ARK_EMBEDDING_MODEL")
	}

	return arkembedding.NewEmbedder(ctx, &arkembedding.EmbeddingConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}

// loadEmbeddingConfig 未单独配置时复用对话模型的凭证。
func loadEmbeddingConfig(ai AIConfig) EmbeddingConfig {
	return EmbeddingConfig{
		APIKey:    getEnvOrDefault("ARK_EMBEDDING_API_KEY", ai.APIKey),
		AccessKey: ai.AccessKey,
		SecretKey: ai.SecretKey,
		Model:     strings.TrimSpace(os.Getenv("ARK_EMBEDDING_MODEL")),
		BaseURL:   ai.BaseURL,
		Region:    ai.Region,
	}
}

// KnowledgeConfig 控制产品知识库的加载与检索。
type KnowledgeConfig struct {
	Path         string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

func loadKnowledgeConfig() (KnowledgeConfig, error) {
	chunkSize, err := parseIntEnv("KNOWLEDGE_CHUNK_SIZE", 500)
	if err != nil {
		return KnowledgeConfig{}, err
	}
	overlap, err := parseIntEnv("KNOWLEDGE_CHUNK_OVERLAP", 50)
	if err != nil {
		return KnowledgeConfig{}, err
	}
	topK, err := parseIntEnv("KNOWLEDGE_TOP_K", 2)
	if err != nil {
		return KnowledgeConfig{}, err
	}

	if chunkSize <= 0 {
		return KnowledgeConfig{}, fmt.Errorf("invalid KNOWLEDGE_CHUNK_SIZE value %d: must be positive", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return KnowledgeConfig{}, fmt.Errorf("invalid KNOWLEDGE_CHUNK_OVERLAP value %d: must be in [0, %d)", overlap, chunkSize)
	}
	if topK < 1 {
		topK = 1
	}

	return KnowledgeConfig{
		Path:         strings.TrimSpace(os.Getenv("KNOWLEDGE_BASE_PATH")),
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
		TopK:         topK,
	}, nil
}

// SessionConfig 限制内存会话存储，零值表示不限制。
type SessionConfig struct {
	TTL         time.Duration
	MaxSessions int
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 0)
	if err != nil {
		return SessionConfig{}, err
	}
	maxSessions, err := parseIntEnv("SESSION_MAX", 0)
	if err != nil {
		return SessionConfig{}, err
	}
	if maxSessions < 0 {
		maxSessions = 0
	}
	return SessionConfig{TTL: ttl, MaxSessions: maxSessions}, nil
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string
	File   string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console"))
	if format != "console" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want console or json", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		File:   strings.TrimSpace(os.Getenv("LOG_FILE")),
		Format: format,
	}, nil
}

// RateLimitConfig HTTP 接口限流配置，RPS 为 0 时关闭限流。
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	rps, err := parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return RateLimitConfig{}, err
	}
	burst, err := parseIntEnv("RATE_LIMIT_BURST", 10)
	if err != nil {
		return RateLimitConfig{}, err
	}

	cfg := RateLimitConfig{Burst: burst}
	if rps != nil && *rps > 0 {
		cfg.RPS = *rps
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return cfg, nil
}

// Enabled 表示是否开启限流。
func (c RateLimitConfig) Enabled() bool {
	return c.RPS > 0
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
