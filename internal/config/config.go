package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for both the API and worker processes.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieve  RetrieveConfig  `mapstructure:"retrieve"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or sqlite

	// SQLite
	Path string `mapstructure:"path"`

	// PostgreSQL
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, minio
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// EmbeddingConfig selects exactly one backend per deployment: "cloud" talks
// to an OpenAI-compatible embeddings API, "local" talks to an Ollama server.
// Vectors from the two backends are not comparable, so the mode is fixed at
// process start and never mixed within a collection.
type EmbeddingConfig struct {
	Mode       string `mapstructure:"mode"` // cloud or local
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`

	// Cloud backend
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`

	// Local backend
	LocalHost   string `mapstructure:"local_host"`
	Concurrency int    `mapstructure:"concurrency"`
}

type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	Retention   time.Duration `mapstructure:"retention"`
}

type WorkerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	Staleness       time.Duration `mapstructure:"staleness"`
	ReapInterval    time.Duration `mapstructure:"reap_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ChunkingConfig struct {
	ChunkSize          int  `mapstructure:"chunk_size"`
	Overlap            int  `mapstructure:"overlap"`
	PreserveParagraphs bool `mapstructure:"preserve_paragraphs"`
	MinChunkSize       int  `mapstructure:"min_chunk_size"`
}

type RetrieveConfig struct {
	TopK                int           `mapstructure:"top_k"`
	SimilarityThreshold float32       `mapstructure:"similarity_threshold"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("embedding.mode", "EMBEDDING_MODE")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("embedding.local_host", "OLLAMA_HOST")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/knowbase.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "knowbase_chunks")

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "documents")

	v.SetDefault("embedding.mode", "cloud")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.local_host", "http://localhost:11434")
	v.SetDefault("embedding.concurrency", 4)

	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base", 5*time.Second)
	v.SetDefault("queue.backoff_cap", 5*time.Minute)
	v.SetDefault("queue.retention", 7*24*time.Hour)

	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.job_timeout", 10*time.Minute)
	v.SetDefault("worker.staleness", 2*time.Minute)
	v.SetDefault("worker.reap_interval", 30*time.Second)
	v.SetDefault("worker.cleanup_interval", time.Hour)

	v.SetDefault("chunking.chunk_size", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("chunking.preserve_paragraphs", true)
	v.SetDefault("chunking.min_chunk_size", 100)

	v.SetDefault("retrieve.top_k", 5)
	v.SetDefault("retrieve.similarity_threshold", 0.35)
	v.SetDefault("retrieve.timeout", 10*time.Second)
}
