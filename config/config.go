package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageConfig holds the upload storage settings.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local or minio
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// VectorDBConfig holds the vector store settings.
type VectorDBConfig struct {
	Type       string `mapstructure:"type"` // chromem, faiss or memory
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
	Dim        int    `mapstructure:"dim"`
	Distance   string `mapstructure:"distance"` // cosine, l2, dot
}

// LLMConfig holds the language model settings.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Endpoint    string  `mapstructure:"endpoint"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// EmbedConfig holds the embedding model settings.
type EmbedConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

// CacheConfig holds the answer cache settings.
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type"` // memory or redis
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // seconds
}

// QueueConfig holds the background task queue settings.
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Concurrency   int    `mapstructure:"concurrency"`
	RetryLimit    int    `mapstructure:"retry_limit"`
	RetryDelay    int    `mapstructure:"retry_delay"` // seconds
}

// DatabaseConfig holds the metadata database settings.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite
	DSN  string `mapstructure:"dsn"`
}

// DocumentConfig holds the chunking settings.
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// SearchConfig holds the retrieval settings.
type SearchConfig struct {
	Limit    int     `mapstructure:"limit"`
	MinScore float32 `mapstructure:"min_score"`
}

// Load reads the configuration from a file and the environment.
// Missing files are not an error, defaults apply.
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			log.Printf("Warning: config file not found at %s, using defaults", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	expandEnvironment(&config)

	return &config, nil
}

// Validate checks settings that cannot fall back to a default.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is not set, export OPENAI_API_KEY")
	}
	if c.Embed.APIKey == "" {
		return fmt.Errorf("embedding api key is not set, export OPENAI_API_KEY")
	}
	return nil
}

// expandEnvironment resolves ${VAR} references and the OPENAI_API_KEY
// fallback for the API keys.
func expandEnvironment(cfg *Config) {
	cfg.Embed.APIKey = expandValue(cfg.Embed.APIKey)
	cfg.LLM.APIKey = expandValue(cfg.LLM.APIKey)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embed.APIKey == "" {
			cfg.Embed.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
	}
}

func expandValue(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
			return envVal
		}
		return ""
	}
	return value
}

// DataDir returns the directory holding the on-disk state.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Database.DSN)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/uploads")
	v.SetDefault("storage.bucket", "pdfchat")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("vectordb.type", "chromem")
	v.SetDefault("vectordb.path", "./data/vectordb")
	v.SetDefault("vectordb.collection", "pdf_chat_collection")
	v.SetDefault("vectordb.dim", 1536)
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.0)

	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 1536)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 86400) // 24h

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/pdfchat.db")

	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)

	v.SetDefault("search.limit", 3)
	v.SetDefault("search.min_score", 0.7)
}
