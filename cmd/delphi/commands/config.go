// Package commands implements the delphi CLI commands. Configuration merges
// defaults, an optional delphi.toml, and DELPHI_* environment variables, in
// that precedence order.
package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/classifier/scripted"
	"github.com/wehubfusion/Delphi/pkg/dispatch"
	"github.com/wehubfusion/Delphi/pkg/nlp"
	"github.com/wehubfusion/Delphi/pkg/storage"
)

// ConfigFile holds the --config flag value from the root command.
var ConfigFile string

// Config is the full CLI configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Models  ModelsConfig  `mapstructure:"models"`
	Storage StorageConfig `mapstructure:"storage"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Serve   ServeConfig   `mapstructure:"serve"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Sentry  SentryConfig  `mapstructure:"sentry"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Parsers declares structural parsing rules, keyed "domain.intent"
	// then head entity type, each listing attachable dependent types.
	Parsers map[string]map[string][]string `mapstructure:"parsers"`
}

// AppConfig locates the application and sizes its processing.
type AppConfig struct {
	Root     string `mapstructure:"root"`
	Language string `mapstructure:"language"`
	Workers  int    `mapstructure:"workers"`
}

// ModelsConfig selects the model type fitted at each tier. ScriptFile
// registers a scripted text classifier from a JavaScript source file.
type ModelsConfig struct {
	Text                 string `mapstructure:"text"`
	Recognizer           string `mapstructure:"recognizer"`
	Role                 string `mapstructure:"role"`
	Resolver             string `mapstructure:"resolver"`
	ScriptFile           string `mapstructure:"script_file"`
	ScriptTimeoutSeconds int    `mapstructure:"script_timeout_seconds"`
}

// StorageConfig selects the artifact store. An Azure connection string
// switches from the local filesystem store to Blob Storage.
type StorageConfig struct {
	AzureConnectionString string `mapstructure:"azure_connection_string"`
	AzureContainer        string `mapstructure:"azure_container"`
}

// NATSConfig holds serving transport connection parameters.
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

// ServeConfig holds serving runner parameters.
type ServeConfig struct {
	Stream                string `mapstructure:"stream"`
	Consumer              string `mapstructure:"consumer"`
	BatchSize             int    `mapstructure:"batch_size"`
	Workers               int    `mapstructure:"workers"`
	ProcessTimeoutSeconds int    `mapstructure:"process_timeout_seconds"`
	MaxDeliver            int    `mapstructure:"max_deliver"`
	PublishMaxRetries     int    `mapstructure:"publish_max_retries"`
	ResponseStream        string `mapstructure:"response_stream"`
	ResponseSubject       string `mapstructure:"response_subject"`
}

// TracingConfig holds OTLP tracing parameters for the serve command.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Environment string  `mapstructure:"environment"`
}

// SentryConfig holds error reporting parameters. An empty DSN disables
// reporting.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
	Release     string `mapstructure:"release"`
}

// LoggingConfig switches between production JSON and development console
// output.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.root", "")
	v.SetDefault("app.language", "en")
	v.SetDefault("app.workers", 0)

	v.SetDefault("models.text", classifier.ModelBayes)
	v.SetDefault("models.recognizer", classifier.ModelPhrase)
	v.SetDefault("models.role", classifier.ModelBayes)
	v.SetDefault("models.resolver", classifier.ModelExact)
	v.SetDefault("models.script_timeout_seconds", 5)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "delphi")

	v.SetDefault("serve.stream", "DELPHI_REQUESTS")
	v.SetDefault("serve.consumer", "delphi-workers")
	v.SetDefault("serve.batch_size", 10)
	v.SetDefault("serve.workers", 4)
	v.SetDefault("serve.process_timeout_seconds", 30)
	v.SetDefault("serve.max_deliver", 5)
	v.SetDefault("serve.publish_max_retries", 3)
	v.SetDefault("serve.response_stream", "DELPHI_RESPONSES")
	v.SetDefault("serve.response_subject", "delphi.response")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "127.0.0.1:4318")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("logging.development", false)
}

// loadConfig reads the configuration. A missing config file is fine; a
// broken one is not.
func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DELPHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if ConfigFile != "" {
		v.SetConfigFile(ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", ConfigFile, err)
		}
	} else {
		v.SetConfigName("delphi")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.Logging.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newEngine assembles an engine from the configuration. appRoot overrides
// the configured application root when non-empty; reporter may be nil.
func newEngine(cfg *Config, appRoot string, reporter dispatch.Reporter, logger *zap.Logger) (*nlp.Engine, error) {
	root := cfg.App.Root
	if appRoot != "" {
		root = appRoot
	}
	if root == "" {
		return nil, errors.New("application root is required (--app flag, app.root config, or DELPHI_APP_ROOT)")
	}

	var tag language.Tag
	if cfg.App.Language != "" {
		var err error
		tag, err = language.Parse(cfg.App.Language)
		if err != nil {
			return nil, fmt.Errorf("parsing app.language %q: %w", cfg.App.Language, err)
		}
	}

	models := classifier.NewRegistry()
	if cfg.Models.ScriptFile != "" {
		script, err := os.ReadFile(cfg.Models.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("reading models.script_file: %w", err)
		}
		scripted.Register(models, scripted.Config{
			Script:  string(script),
			Timeout: time.Duration(cfg.Models.ScriptTimeoutSeconds) * time.Second,
		})
	}

	var store storage.ArtifactStore
	if cfg.Storage.AzureConnectionString != "" {
		var err error
		store, err = storage.NewAzureBlobStore(cfg.Storage.AzureConnectionString, cfg.Storage.AzureContainer, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting artifact store: %w", err)
		}
	}

	return nlp.NewEngine(nlp.Config{
		AppRoot:         root,
		Language:        tag,
		Store:           store,
		Models:          models,
		TextModel:       cfg.Models.Text,
		RecognizerModel: cfg.Models.Recognizer,
		RoleModel:       cfg.Models.Role,
		ResolverModel:   cfg.Models.Resolver,
		Workers:         cfg.App.Workers,
		Reporter:        reporter,
		Parsers:         parserRules(cfg.Parsers),
	}, logger)
}

func parserRules(raw map[string]map[string][]string) map[string]nlp.ParserRule {
	if len(raw) == 0 {
		return nil
	}
	rules := make(map[string]nlp.ParserRule, len(raw))
	for intent, rule := range raw {
		rules[intent] = nlp.ParserRule(rule)
	}
	return rules
}
