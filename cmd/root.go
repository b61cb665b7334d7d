package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codeur-agent/codeur-responder/internal/ai/ollama"
	"github.com/codeur-agent/codeur-responder/internal/bidding"
	"github.com/codeur-agent/codeur-responder/internal/codeur"
	"github.com/codeur-agent/codeur-responder/internal/crawler"
	"github.com/codeur-agent/codeur-responder/internal/filtering"
	"github.com/codeur-agent/codeur-responder/internal/mailbox"
	"github.com/codeur-agent/codeur-responder/internal/store"
)

const (
	app = "codeur-responder"
)

type Config struct {
	UserAgent   string           `mapstructure:"user-agent"`
	ProfileFile string           `mapstructure:"profile-file"`
	Mail        mailbox.Config   `mapstructure:"mail"`
	Crawler     crawler.Config   `mapstructure:"crawler"`
	Matching    filtering.Config `mapstructure:"matching"`
	AI          AIConfig         `mapstructure:"ai"`
	Store       store.Config     `mapstructure:"store"`
	Apply       ApplyConfig      `mapstructure:"apply"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Ollama   ollama.Config `mapstructure:"ollama"`
	Gemini   GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type ApplyConfig struct {
	bidding.Config       `mapstructure:",squash"`
	codeur.BrowserConfig `mapstructure:",squash"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "codeur-responder qualifies codeur.com project notifications and bids on the relevant ones",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"mail.password-file":     "CODEUR_MAIL_PASSWORD_FILE",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"store.mongo.uri":        "CODEUR_MONGO_URI",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("ai.provider", "ollama")
	viper.SetDefault("ai.timeout", 60*time.Second)
	viper.SetDefault("store.driver", store.DriverMongo)
	viper.SetDefault("mail.mailbox", mailbox.DefaultMailbox)
	viper.SetDefault("mail.label", mailbox.DefaultLabel)
	viper.SetDefault("mail.senders", filtering.DefaultSourceConfig().Senders)
	viper.SetDefault("mail.subjects", filtering.DefaultSourceConfig().Subjects)
	viper.SetDefault("matching.minimum-fit-score", filtering.DefaultMinimumFitScore)
	viper.SetDefault("apply.headless", true)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is codeur-responder.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// version does not need any configuration
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit file, defaults and environment are enough for some commands.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Crawler.UserAgent == "" {
		config.Crawler.UserAgent = config.UserAgent
	}

	return config, nil
}
