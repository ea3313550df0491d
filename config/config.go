// Package config loads docchat settings from the environment, an optional
// .env file and an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Memory    MemoryConfig    `yaml:"memory"`
}

type AppConfig struct {
	ServerAddr  string `yaml:"server_addr" validate:"required"`
	Environment string `yaml:"environment"`
	LogFilePath string `yaml:"log_file_path" validate:"required"`
	UploadDir   string `yaml:"upload_dir" validate:"required"`
}

type LLMConfig struct {
	Provider          string  `yaml:"provider" validate:"oneof=ollama gemini"`
	Model             string  `yaml:"model" validate:"required"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	OllamaURL         string  `yaml:"ollama_url"`
	GeminiAPIKey      string  `yaml:"gemini_api_key"`
	EmbeddingProvider string  `yaml:"embedding_provider" validate:"oneof=ollama gemini"`
	EmbeddingModel    string  `yaml:"embedding_model" validate:"required"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=postgres sqlite"`
	PersistDir string `yaml:"persist_dir"`
	Collection string `yaml:"collection" validate:"required"`
	PGHost     string `yaml:"pg_host"`
	PGPort     int    `yaml:"pg_port"`
	PGUser     string `yaml:"pg_user"`
	PGPass     string `yaml:"pg_pass"`
	PGDBName   string `yaml:"pg_db_name"`
	Dimensions int    `yaml:"dimensions" validate:"gt=0"`
	TopK       int    `yaml:"top_k" validate:"gt=0"`
}

type IngestionConfig struct {
	DoclingURL     string        `yaml:"docling_url"`
	MaxCharacters  int           `yaml:"max_characters" validate:"gt=0"`
	NewAfterNChars int           `yaml:"new_after_n_chars" validate:"gt=0"`
	Overlap        int           `yaml:"overlap" validate:"gte=0"`
	SummaryDelay   time.Duration `yaml:"summary_delay"`
	ExtractImages  bool          `yaml:"extract_images"`
	CropTop        float64       `yaml:"crop_top" validate:"gte=0"`
	CropBottom     float64       `yaml:"crop_bottom" validate:"gte=0"`
	SourceDir      string        `yaml:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir"`
	BadDir         string        `yaml:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time"`
}

type MemoryConfig struct {
	UserPath            string  `yaml:"user_path" validate:"required"`
	CompanyPath         string  `yaml:"company_path" validate:"required"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
}

// Load reads .env (if present), the process environment and, when
// DOCCHAT_CONFIG names a file, overlays its YAML values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()

	if path := os.Getenv("DOCCHAT_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		App: AppConfig{
			ServerAddr:  getEnv("SERVER_ADDR", ":3000"),
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "docchat.log"),
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		},
		LLM: LLMConfig{
			Provider:          getEnv("LLM_PROVIDER", "ollama"),
			Model:             getEnv("LLM_MODEL", "llama3.2-vision"),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0),
			OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
			GeminiAPIKey:      getEnv("GOOGLE_API_KEY", ""),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		},
		Store: StoreConfig{
			Backend:    getEnv("VECTOR_BACKEND", "sqlite"),
			PersistDir: getEnv("VECTOR_PERSIST_DIR", "chat_index"),
			Collection: getEnv("VECTOR_COLLECTION", "documents"),
			PGHost:     getEnv("PG_HOST", "localhost"),
			PGPort:     getEnvAsInt("PG_PORT", 5432),
			PGUser:     getEnv("PG_USER", "postgres"),
			PGPass:     getEnv("PG_PASS", ""),
			PGDBName:   getEnv("PG_DB_NAME", "docchat"),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			TopK:       getEnvAsInt("TOP_K", 5),
		},
		Ingestion: IngestionConfig{
			DoclingURL:     getEnv("DOCLING_URL", "http://localhost:5001"),
			MaxCharacters:  getEnvAsInt("CHUNK_MAX_CHARACTERS", 1500),
			NewAfterNChars: getEnvAsInt("CHUNK_NEW_AFTER_N_CHARS", 1000),
			Overlap:        getEnvAsInt("CHUNK_OVERLAP", 100),
			SummaryDelay:   getEnvAsDuration("SUMMARY_DELAY", time.Second),
			ExtractImages:  getEnvAsBool("EXTRACT_IMAGES", true),
			CropTop:        getEnvAsFloat("PDF_CROP_TOP", 0),
			CropBottom:     getEnvAsFloat("PDF_CROP_BOTTOM", 0),
			SourceDir:      getEnv("LOADER_SOURCE_DIR", "sample_docs"),
			ArchiveDir:     getEnv("LOADER_ARCHIVE_DIR", "archive"),
			BadDir:         getEnv("LOADER_BAD_DIR", "bad"),
			MonitoringTime: getEnvAsDuration("LOADER_MONITORING_TIME", 5*time.Second),
		},
		Memory: MemoryConfig{
			UserPath:            getEnv("USER_MEMORY_PATH", "USER_MEMORY.md"),
			CompanyPath:         getEnv("COMPANY_MEMORY_PATH", "COMPANY_MEMORY.md"),
			ConfidenceThreshold: getEnvAsFloat("MEMORY_CONFIDENCE_THRESHOLD", 0.7),
		},
	}
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.LLM.Provider == "gemini" && c.LLM.GeminiAPIKey == "" {
		return fmt.Errorf("config: GOOGLE_API_KEY is required for the gemini provider")
	}
	if c.Ingestion.NewAfterNChars > c.Ingestion.MaxCharacters {
		return fmt.Errorf("config: new_after_n_chars (%d) exceeds max_characters (%d)",
			c.Ingestion.NewAfterNChars, c.Ingestion.MaxCharacters)
	}
	return nil
}

// PostgresDSN builds the connection string the same way for every binary.
func (c StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName)
}

func (c AppConfig) IsProd() bool { return c.Environment == "production" }

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
