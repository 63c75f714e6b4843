package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("session-broker version %s, commit %s, built at %s", version, commit, date)
}

// Deployment environments. Anything other than dev or staging is treated as production.
const (
	EnvironmentDev        = "dev"
	EnvironmentStaging    = "staging"
	EnvironmentProduction = "production"
)

type Config struct {
	Environment string        `mapstructure:"environment" yaml:"environment"`
	Server      ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging     LoggingConfig `mapstructure:"logging" yaml:"logging"`
	OAuth       OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
	Store       StoreConfig   `mapstructure:"store" yaml:"store"`
	Session     SessionConfig `mapstructure:"session" yaml:"session"`
	CORS        CORSConfig    `mapstructure:"cors" yaml:"cors"`
	Entropy     EntropyConfig `mapstructure:"entropy" yaml:"entropy"`
	Staff       StaffConfig   `mapstructure:"staff" yaml:"staff"`
	Metrics     MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Host            string        `mapstructure:"host" yaml:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" yaml:"level"`
	Format            string `mapstructure:"format" yaml:"format"`
	Color             bool   `mapstructure:"color" yaml:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" yaml:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path" yaml:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file" yaml:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console" yaml:"disable_console"`
}

// OAuthConfig describes the upstream identity provider.
type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	APIBaseURL   string   `mapstructure:"api_base_url" yaml:"api_base_url"` // provider REST root, e.g. https://discord.com/api/v9
	Issuer       string   `mapstructure:"issuer" yaml:"issuer"`             // when set, endpoints come from OIDC discovery
	AuthURL      string   `mapstructure:"auth_url" yaml:"auth_url"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url"`
	UserInfoURL  string   `mapstructure:"userinfo_url" yaml:"userinfo_url"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
	UserIDPath   string   `mapstructure:"user_id_path" yaml:"user_id_path"` // gjson path of the user id in the userinfo payload
}

// IDPath is where the user id sits in the userinfo payload: the configured
// path, "sub" for OpenID issuers, "id" otherwise.
func (o OAuthConfig) IDPath() string {
	switch {
	case o.UserIDPath != "":
		return o.UserIDPath
	case o.Issuer != "":
		return "sub"
	default:
		return "id"
	}
}

type StoreConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	DB           int           `mapstructure:"db" yaml:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type SessionConfig struct {
	CookieName       string `mapstructure:"cookie_name" yaml:"cookie_name"`
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`                     // where the broker is reachable
	FinalRedirectURL string `mapstructure:"final_redirect_url" yaml:"final_redirect_url"` // where the browser lands after login
	SingleUseState   bool   `mapstructure:"single_use_state" yaml:"single_use_state"`
}

// CallbackURL is the fixed redirect URI registered with the provider.
func (s SessionConfig) CallbackURL() string {
	return strings.TrimSuffix(s.BaseURL, "/") + "/auth/callback"
}

// OriginRule is one entry of the CORS allow list. For Wildcard rules Origin
// is a host, matched together with its "." and "--" prefixed subdomains over
// https.
type OriginRule struct {
	Origin   string `mapstructure:"origin" yaml:"origin"`
	Wildcard bool   `mapstructure:"wildcard" yaml:"wildcard,omitempty"`
}

type CORSConfig struct {
	AllowOrigins []OriginRule `mapstructure:"allow_origins" yaml:"allow_origins"`
}

type EntropySourceType string

const (
	EntropySourceRemote EntropySourceType = "remote"
	EntropySourceLocal  EntropySourceType = "local"
)

type EntropyConfig struct {
	Source  EntropySourceType `mapstructure:"source" yaml:"source"`
	URL     string            `mapstructure:"url" yaml:"url"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
}

// StaffConfig enables the optional staff credential endpoint.
type StaffConfig struct {
	SigningKey string        `mapstructure:"signing_key" yaml:"signing_key"` // PKCS8 PEM, ES256
	UserIDs    []string      `mapstructure:"user_ids" yaml:"user_ids"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// Enabled reports whether a signing key is configured.
func (s StaffConfig) Enabled() bool {
	return strings.TrimSpace(s.SigningKey) != ""
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// environmentURLs holds the per-environment defaults for the broker's own
// address and the application it hands the browser back to.
type environmentURLs struct {
	finalRedirectURL string
	baseURL          string
}

var environments = map[string]environmentURLs{
	EnvironmentDev: {
		finalRedirectURL: "http://localhost:3000",
		baseURL:          "http://localhost:8787",
	},
	EnvironmentStaging: {
		finalRedirectURL: "https://staging--message.anothercat.me",
		baseURL:          "https://auth--staging--message.anothercat.me",
	},
	EnvironmentProduction: {
		finalRedirectURL: "https://message.anothercat.me",
		baseURL:          "https://auth--message.anothercat.me",
	},
}

// DefaultOrigins returns the CORS allow list used when none is configured.
func DefaultOrigins(environment string) []OriginRule {
	origins := []OriginRule{{Origin: "https://message.anothercat.me"}}
	if environment == EnvironmentProduction {
		return origins
	}
	return append(origins,
		OriginRule{Origin: "https://staging--message.anothercat.me"},
		OriginRule{Origin: "musing-hugle-9b7494.netlify.app", Wildcard: true}, // netlify preview deploys
		OriginRule{Origin: "http://localhost:3000"},
	)
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(flags *pflag.FlagSet) {
	flags.String("environment", EnvironmentProduction, "Deployment environment (dev|staging|production)")
	flags.String("config", "", "Path to a config file")
	// Note: no Parse() here as cobra parses the flag set
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvironmentProduction)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.disable_stacktrace", false)
	v.SetDefault("logging.output_path", "")
	v.SetDefault("logging.append_to_file", false)
	v.SetDefault("logging.disable_console", false)

	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.api_base_url", "https://discord.com/api/v9")
	v.SetDefault("oauth.issuer", "")
	v.SetDefault("oauth.auth_url", "")
	v.SetDefault("oauth.token_url", "")
	v.SetDefault("oauth.userinfo_url", "")
	v.SetDefault("oauth.scopes", []string{"identify"})
	v.SetDefault("oauth.user_id_path", "")

	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.key_prefix", "")
	v.SetDefault("store.dial_timeout", 5*time.Second)
	v.SetDefault("store.read_timeout", 3*time.Second)
	v.SetDefault("store.write_timeout", 3*time.Second)

	v.SetDefault("session.cookie_name", "mm-s-id")
	v.SetDefault("session.base_url", "")
	v.SetDefault("session.final_redirect_url", "")
	v.SetDefault("session.single_use_state", true)

	v.SetDefault("entropy.source", string(EntropySourceRemote))
	v.SetDefault("entropy.url", "https://csprng.xyz/v1/api")
	v.SetDefault("entropy.timeout", 10*time.Second)

	v.SetDefault("staff.signing_key", "")
	v.SetDefault("staff.user_ids", []string{})
	v.SetDefault("staff.token_ttl", 4*time.Hour)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from flags, environment (SESSION_BROKER_*) and an
// optional config.yaml.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SESSION_BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/session-broker")
	}

	if err := v.ReadInConfig(); err != nil {
		// Env-only deployments have no config file
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	//Loading additionals config files
	if _, err := os.Stat("/config/config.yaml"); err == nil {
		v.SetConfigFile("/config/config.yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to merge /config/config.yaml: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.applyEnvironment()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnvironment fills URLs and origins that were not set explicitly.
func (c *Config) applyEnvironment() {
	urls, ok := environments[c.Environment]
	if !ok {
		urls = environments[EnvironmentProduction]
	}
	if c.Session.FinalRedirectURL == "" {
		c.Session.FinalRedirectURL = urls.finalRedirectURL
	}
	if c.Session.BaseURL == "" {
		c.Session.BaseURL = urls.baseURL
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = DefaultOrigins(c.Environment)
	}
}

// Validate checks the fields the broker cannot start without.
func (c *Config) Validate() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required, please adjust the config or set SESSION_BROKER_OAUTH_CLIENT_ID")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth.client_secret is required, please adjust the config or set SESSION_BROKER_OAUTH_CLIENT_SECRET")
	}
	if c.OAuth.Issuer == "" && c.OAuth.APIBaseURL == "" {
		return fmt.Errorf("either oauth.issuer or oauth.api_base_url must be set")
	}
	switch c.Entropy.Source {
	case EntropySourceRemote:
		if c.Entropy.URL == "" {
			return fmt.Errorf("entropy.url is required for the remote entropy source")
		}
	case EntropySourceLocal:
	default:
		return fmt.Errorf("unsupported entropy source: %s", c.Entropy.Source)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name must not be empty")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	const mask = "********"
	if c.OAuth.ClientSecret != "" {
		c.OAuth.ClientSecret = mask
	}
	if c.Store.Password != "" {
		c.Store.Password = mask
	}
	if c.Staff.SigningKey != "" {
		c.Staff.SigningKey = mask
	}
	return c
}
