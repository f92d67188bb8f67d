package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/katakuxiko/assistgw/internal/model"
	"github.com/katakuxiko/assistgw/internal/util"
)

type Config struct {
	ServerAddr string
	LogDebug   bool

	// хранилище ассистентов и настроек организаций
	ConfigDBPath   string
	ConfigSeedFile string

	// база знаний: postgres | sqlite | none
	KnowledgeBackend string
	PgConn           string
	SQLitePath       string
	EmbedBaseURL     string
	EmbedAPIKey      string
	EmbedModel       string
	EmbedDim         int

	// модель для переписывания поисковых запросов; пусто - выключено
	OptimizerModel   string
	OptimizerBaseURL string
	OptimizerAPIKey  string

	ProviderTimeout  time.Duration
	KnowledgeTimeout time.Duration
	OptimizerTimeout time.Duration

	// системные настройки провайдеров, если у организации своих нет
	Providers map[string]model.ProviderConfig
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[cfg] no .env file loaded: %v", err)
	}

	openaiBase := getenv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	openaiKey := getenv("OPENAI_API_KEY", "")
	localBase := getenv("LOCAL_BASE_URL", "http://localhost:11434")

	cfg := &Config{
		ServerAddr:       getenv("SERVER_ADDR", ":8080"),
		LogDebug:         getenv("LOG_DEBUG", "false") == "true",
		ConfigDBPath:     getenv("CONFIG_DB_PATH", "assistgw.db"),
		ConfigSeedFile:   getenv("CONFIG_SEED_FILE", ""),
		KnowledgeBackend: getenv("KNOWLEDGE_BACKEND", "none"),
		PgConn:           getenv("PG_CONN", "host=localhost port=5432 user=postgres password=123123 dbname=pdf_ai sslmode=disable"),
		SQLitePath:       getenv("SQLITE_PATH", "knowledge.db"),
		EmbedBaseURL:     getenv("EMBED_BASE_URL", openaiBase),
		EmbedAPIKey:      getenv("EMBED_API_KEY", openaiKey),
		EmbedModel:       getenv("EMBED_MODEL", "text-embedding-nomic-embed-text-v1.5"),
		EmbedDim:         getint("EMBED_DIM", 768),
		OptimizerModel:   getenv("OPTIMIZER_MODEL", ""),
		OptimizerBaseURL: getenv("OPTIMIZER_BASE_URL", openaiBase),
		OptimizerAPIKey:  getenv("OPTIMIZER_API_KEY", openaiKey),
		ProviderTimeout:  getduration("PROVIDER_TIMEOUT", 60*time.Second),
		KnowledgeTimeout: getduration("KNOWLEDGE_TIMEOUT", 5*time.Second),
		OptimizerTimeout: getduration("OPTIMIZER_TIMEOUT", 8*time.Second),
		Providers: map[string]model.ProviderConfig{
			"openai": providerFromEnv("openai", openaiKey, openaiBase, "OPENAI_MODELS", "OPENAI_DEFAULT_MODEL", "gpt-4o-mini"),
			"local":  providerFromEnv("local", "", localBase, "LOCAL_MODELS", "LOCAL_DEFAULT_MODEL", "llama3.2"),
			"bypass": providerFromEnv("bypass", "", "", "BYPASS_MODELS", "BYPASS_DEFAULT_MODEL", "echo"),
		},
	}
	return cfg
}

// providerFromEnv собирает системную запись провайдера; первый элемент списка - модель по умолчанию
func providerFromEnv(name, key, baseURL, modelsKey, defaultKey, fallbackModel string) model.ProviderConfig {
	models := util.SplitList(getenv(modelsKey, fallbackModel))
	def := getenv(defaultKey, "")
	if def == "" && len(models) > 0 {
		def = models[0]
	}
	return model.ProviderConfig{
		Provider:      name,
		Enabled:       len(models) > 0,
		APIKey:        key,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		AllowedModels: models,
		DefaultModel:  def,
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[cfg] bad duration %s=%q, using %s", k, v, def)
		return def
	}
	return d
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[cfg] bad number %s=%q, using %d", k, v, def)
		return def
	}
	return n
}
