package config

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Gateway endpoints
const (
	ProductionBaseURL = "https://api.huifu.com"
	SandboxBaseURL    = "https://spin-test.cloudpnr.com"
	DefaultProductID  = "PAYUN"
)

type CKey string

type Config struct {
	Validator *validator.Validate
	SecretKey string
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port             string
	OpenSearchURL    string
	OpenSearchUser   string
	OpenSearchPass   string
	EnableLogging    bool
	LoggingLevel     string
	LogRetentionDays int
	SQLitePath       string
	APIKey           string
	RateLimit        int
	CallbackIPs      []string
	CORSOrigins      []string
}

// Gateway is the merchant configuration shared by the dispatcher, the signed
// transport and the callback verifier. It is built once at startup and never
// mutated afterwards.
type Gateway struct {
	SysID      string `validate:"required"`
	ProductID  string `validate:"required"`
	MerchantID string `validate:"required"`
	PrivateKey string `validate:"required"`
	PublicKey  string `validate:"required"`
	NotifyURL  string `validate:"omitempty,url"`
	SubAppID   string
	BaseURL    string `validate:"required,url"`
	Sandbox    bool
	Debug      bool
	Timeout    time.Duration `validate:"gte=0"`
	Retries    int           `validate:"gte=0,lte=10"`
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
			// the secret key will change every time the application is restarted.
			SecretKey: uuid.New().String(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:             GetEnv("APP_PORT", "9999"),
			OpenSearchURL:    GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:   GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:   GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:    GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", true),
			LoggingLevel:     GetEnv("LOGGING_LEVEL", "info"),
			LogRetentionDays: GetIntEnv("LOG_RETENTION_DAYS", 30),
			SQLitePath:       GetEnv("SQLITE_DB_PATH", "./data/gohuifu.db"),
			APIKey:           GetEnv("API_KEY", ""),
			RateLimit:        GetIntEnv("RATE_LIMIT_PER_MINUTE", 100),
			CallbackIPs:      GetListEnv("HUIFU_CALLBACK_IPS"),
			CORSOrigins:      GetListEnv("CORS_ALLOWED_ORIGINS"),
		}
	}
	return appConfigInstance
}

// LoadGateway reads the gateway configuration from the environment and
// validates it.
func LoadGateway() (Gateway, error) {
	sandbox := GetBoolEnv("HUIFU_SANDBOX", false)
	baseURL := ProductionBaseURL
	if sandbox {
		baseURL = SandboxBaseURL
	}

	cfg := Gateway{
		SysID:      GetEnv("HUIFU_SYS_ID", ""),
		ProductID:  GetEnv("HUIFU_PRODUCT_ID", DefaultProductID),
		MerchantID: GetEnv("HUIFU_MCH_ID", ""),
		PrivateKey: GetEnv("HUIFU_MERCH_PRIVATE_KEY", ""),
		PublicKey:  GetEnv("HUIFU_PUBLIC_KEY", ""),
		NotifyURL:  GetEnv("HUIFU_NOTIFY_URL", ""),
		SubAppID:   GetEnv("WECHAT_MINI_APP_ID", ""),
		BaseURL:    strings.TrimRight(GetEnv("HUIFU_BASE_URL", baseURL), "/"),
		Sandbox:    sandbox,
		Debug:      GetBoolEnv("HUIFU_DEBUG", false),
		Timeout:    time.Duration(GetIntEnv("HUIFU_TIMEOUT", 30)) * time.Second,
		Retries:    GetIntEnv("HUIFU_RETRIES", 0),
	}

	if err := cfg.Validate(); err != nil {
		return Gateway{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of the gateway configuration
func (g Gateway) Validate() error {
	if err := App().Validator.Struct(g); err != nil {
		return fmt.Errorf("invalid gateway configuration: %w", err)
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetListEnv splits a comma separated environment variable, dropping blanks
func GetListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns length random alphanumeric characters
func RandomString(length int) string {
	max := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = alphanumeric[n.Int64()]
	}
	return string(b)
}
