package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topics  []string `yaml:"topics"`  // 需要确保存在的 Kafka 主题列表
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 配置 (会话存储与任务结果后端)
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 配置 (任务队列)
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 配置 (故障案例知识库)
}

// OllamaConfig 包含了 Ollama 推理服务的配置。
type OllamaConfig struct {
	Model   string `yaml:"model"`   // 模型名称 (例如: "llama3.1:8b")
	BaseURL string `yaml:"baseURL"` // 服务地址，为空时使用默认地址
}

// OpenAIConfig 包含了 OpenAI 兼容推理服务的配置。
type OpenAIConfig struct {
	APIKey string `yaml:"apiKey"` // API 密钥
	Model  string `yaml:"model"`  // 模型名称
}

// LLMConfig 包含了不同推理提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // 提供商 (例如: "ollama", "openai")
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 配置
}

// KnowledgeConfig 定义了知识库检索的配置。
type KnowledgeConfig struct {
	Collection string `yaml:"collection"` // 故障案例集合名称
	TopK       int    `yaml:"topK"`       // 检索返回的最大案例数
}

// SessionConfig 定义了会话存储的配置。
type SessionConfig struct {
	TTLSeconds int `yaml:"ttlSeconds"` // 会话过期时间（秒），读取时滑动刷新
}

// TaskQueueConfig 定义了任务队列与 worker 的运行配置。
type TaskQueueConfig struct {
	TasksTopic        string `yaml:"tasksTopic"`        // 诊断任务主题
	GroupID           string `yaml:"groupID"`           // worker 消费组
	WorkerCount       int    `yaml:"workerCount"`       // 并行 worker 数量
	HardTimeLimitSecs int    `yaml:"hardTimeLimitSecs"` // 硬超时（秒），超过后任务强制 FAILURE
	SoftTimeLimitSecs int    `yaml:"softTimeLimitSecs"` // 软超时（秒），超过后记录警告
	ResultTTLSeconds  int    `yaml:"resultTTLSeconds"`  // 任务状态在结果后端中的保留时间（秒）
	SessionLockSecs   int    `yaml:"sessionLockSecs"`   // 会话级互斥锁的过期时间（秒）
}

// ServerConfig 定义了 API 服务的监听配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址 (例如: ":8000")
}

// AuthConfig 用于配置 API 边界的共享密钥认证。
type AuthConfig struct {
	APIKey string `yaml:"apiKey"` // 与 X-API-Key 请求头比对的共享密钥
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App       AppInfo         `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Logger    LoggerConfig    `yaml:"logger"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Session   SessionConfig   `yaml:"session"`
	TaskQueue TaskQueueConfig `yaml:"taskQueue"`
	Databases DatabaseConfigs `yaml:"databases"`
}

// SessionTTL 返回会话过期时间。未配置时默认 3600 秒。
func (c *AppConfig) SessionTTL() time.Duration {
	if c.Session.TTLSeconds <= 0 {
		return 3600 * time.Second
	}
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// HardTimeLimit 返回任务硬超时。未配置时默认 300 秒。
func (c *AppConfig) HardTimeLimit() time.Duration {
	if c.TaskQueue.HardTimeLimitSecs <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.TaskQueue.HardTimeLimitSecs) * time.Second
}

// SoftTimeLimit 返回任务软超时。未配置时默认 240 秒。
func (c *AppConfig) SoftTimeLimit() time.Duration {
	if c.TaskQueue.SoftTimeLimitSecs <= 0 {
		return 240 * time.Second
	}
	return time.Duration(c.TaskQueue.SoftTimeLimitSecs) * time.Second
}

// ResultTTL 返回任务状态保留时间。未配置时默认 24 小时。
func (c *AppConfig) ResultTTL() time.Duration {
	if c.TaskQueue.ResultTTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TaskQueue.ResultTTLSeconds) * time.Second
}

// SessionLockTTL 返回会话互斥锁的过期时间。未配置时与硬超时一致。
func (c *AppConfig) SessionLockTTL() time.Duration {
	if c.TaskQueue.SessionLockSecs <= 0 {
		return c.HardTimeLimit()
	}
	return time.Duration(c.TaskQueue.SessionLockSecs) * time.Second
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("无法解析 YAML 文件 '%s': %w", path, err)
	}
	return &cfg, nil
}
