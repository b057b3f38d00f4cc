package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/imagegate/internal/report"
)

const (
	DefaultConfigPath = "imagegate.yml"
	DefaultOutput     = "scan_results.json"
	DefaultScanner    = "trivy"
	DefaultTimeout    = 10 * time.Minute
	DefaultSMTPPort   = 587
	MaxRetries        = 10
)

// Loader merges configuration coming from files, environment variables, and CLI flags.
type Loader struct {
	ConfigPath string
}

// RuntimeConfig contains the fully merged settings for one scan invocation.
type RuntimeConfig struct {
	Target    string
	Output    string
	Interval  time.Duration
	Timeout   time.Duration
	Threshold report.Severity

	Scanner     ScannerConfig
	Retry       RetryConfig
	Metrics     MetricsConfig
	Chat        ChatConfig
	Email       EmailConfig
	Renderer    RendererConfig
	ObjectStore ObjectStoreConfig
}

type ScannerConfig struct {
	Binary string
	Args   []string
}

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// MetricsConfig enables the gauges when PushURL or Listen is set.
type MetricsConfig struct {
	PushURL string
	Job     string
	Listen  string
}

func (m MetricsConfig) Enabled() bool { return m.PushURL != "" || m.Listen != "" }

type ChatConfig struct {
	WebhookURL string
}

// EmailConfig is enabled when Host is set.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Subject  string
}

func (e EmailConfig) Enabled() bool { return e.Host != "" }

// RendererConfig holds the external command that turns a report into a document.
type RendererConfig struct {
	Command   string
	OutputDir string
}

// ObjectStoreConfig is enabled when Bucket is set.
type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

func (o ObjectStoreConfig) Enabled() bool { return o.Bucket != "" }

// Overrides captures values coming from the config file, env vars or CLI flags. Zero values
// leave the lower layer untouched; the *Set flags and pointers mark explicit zeroes.
type Overrides struct {
	Target      string
	Output      string
	Interval    time.Duration
	IntervalSet bool
	Timeout     time.Duration
	TimeoutSet  bool
	Threshold   string
	Retries     int
	RetriesSet  bool

	ScannerBinary string
	ScannerArgs   []string
	BaseDelay     time.Duration
	MaxDelay      time.Duration

	Metrics     MetricsConfig
	Chat        ChatConfig
	Email       EmailConfig
	Renderer    RendererConfig
	ObjectStore ObjectStoreConfig
	UseSSL      *bool
}

// DefaultRuntimeConfig returns the baseline configuration when no overrides are provided.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Output:    DefaultOutput,
		Timeout:   DefaultTimeout,
		Threshold: report.Critical,
		Scanner:   ScannerConfig{Binary: DefaultScanner},
		Retry:     RetryConfig{Attempts: 1, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
		Metrics:   MetricsConfig{Job: "imagegate"},
		Email:     EmailConfig{Port: DefaultSMTPPort},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

// Load resolves the final runtime configuration.
func (l Loader) Load(override Overrides) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	path := l.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	if fileExists(path) {
		fileOv, err := loadFromFile(path)
		if err != nil {
			return cfg, err
		}
		if err := cfg.apply(fileOv); err != nil {
			return cfg, err
		}
	}

	envOv, err := overridesFromEnv()
	if err != nil {
		return cfg, err
	}
	if err := cfg.apply(envOv); err != nil {
		return cfg, err
	}

	if err := cfg.apply(override); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate ensures the config is complete enough to run a scan.
func (c RuntimeConfig) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return &ConfigError{Setting: "target", Reason: "no target configured; provide --target or set " + envTarget}
	}
	if c.Interval < 0 {
		return &ConfigError{Setting: "interval", Reason: fmt.Sprintf("must not be negative (got %s)", c.Interval)}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Setting: "timeout", Reason: fmt.Sprintf("must be positive (got %s)", c.Timeout)}
	}
	if c.Scanner.Binary == "" {
		return &ConfigError{Setting: "scanner.binary", Reason: "cannot be empty"}
	}
	if c.Retry.Attempts < 1 || c.Retry.Attempts > MaxRetries {
		return &ConfigError{Setting: "retries", Reason: fmt.Sprintf("must be between 1 and %d (got %d)", MaxRetries, c.Retry.Attempts)}
	}
	if c.Email.Enabled() {
		if err := c.Email.validate(); err != nil {
			return err
		}
	}
	if c.Renderer.Command != "" && !c.Email.Enabled() {
		return &ConfigError{Setting: "renderer.command", Reason: "a renderer is only used for email attachments; configure email.host"}
	}
	if c.ObjectStore.Enabled() {
		if err := c.ObjectStore.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e EmailConfig) validate() error {
	switch {
	case e.Port < 1 || e.Port > 65535:
		return &ConfigError{Setting: "email.port", Reason: fmt.Sprintf("out of range (got %d)", e.Port)}
	case e.From == "":
		return &ConfigError{Setting: "email.from", Reason: "sender address is required"}
	case len(e.To) == 0:
		return &ConfigError{Setting: "email.to", Reason: "at least one recipient is required"}
	case e.Username != "" && e.Password == "":
		return &ConfigError{Setting: "email.password", Reason: "set " + envSMTPPassword + " when a username is configured"}
	}
	return nil
}

func (o ObjectStoreConfig) validate() error {
	switch {
	case o.Endpoint == "":
		return &ConfigError{Setting: "objectStore.endpoint", Reason: "required when a bucket is configured"}
	case o.AccessKey == "" || o.SecretKey == "":
		return &ConfigError{Setting: "objectStore.accessKey", Reason: "set " + envS3AccessKey + " and " + envS3SecretKey}
	}
	return nil
}

func (c *RuntimeConfig) apply(src Overrides) error {
	if src.Target != "" {
		c.Target = strings.TrimSpace(src.Target)
	}
	if src.Output != "" {
		c.Output = src.Output
	}
	if src.IntervalSet {
		c.Interval = src.Interval
	}
	if src.TimeoutSet {
		c.Timeout = src.Timeout
	}
	if src.Threshold != "" {
		sev, err := report.ParseThreshold(src.Threshold)
		if err != nil {
			return &ConfigError{Setting: "threshold", Reason: err.Error()}
		}
		c.Threshold = sev
	}
	if src.RetriesSet {
		c.Retry.Attempts = src.Retries
	}
	if src.BaseDelay > 0 {
		c.Retry.BaseDelay = src.BaseDelay
	}
	if src.MaxDelay > 0 {
		c.Retry.MaxDelay = src.MaxDelay
	}

	if src.ScannerBinary != "" {
		c.Scanner.Binary = src.ScannerBinary
	}
	if len(src.ScannerArgs) > 0 {
		c.Scanner.Args = cleanList(src.ScannerArgs)
	}

	setString(&c.Metrics.PushURL, src.Metrics.PushURL)
	setString(&c.Metrics.Job, src.Metrics.Job)
	setString(&c.Metrics.Listen, src.Metrics.Listen)

	setString(&c.Chat.WebhookURL, src.Chat.WebhookURL)

	setString(&c.Email.Host, src.Email.Host)
	if src.Email.Port != 0 {
		c.Email.Port = src.Email.Port
	}
	setString(&c.Email.Username, src.Email.Username)
	setString(&c.Email.Password, src.Email.Password)
	setString(&c.Email.From, src.Email.From)
	if len(src.Email.To) > 0 {
		c.Email.To = cleanList(src.Email.To)
	}
	setString(&c.Email.Subject, src.Email.Subject)

	setString(&c.Renderer.Command, src.Renderer.Command)
	setString(&c.Renderer.OutputDir, src.Renderer.OutputDir)

	setString(&c.ObjectStore.Endpoint, src.ObjectStore.Endpoint)
	setString(&c.ObjectStore.Region, src.ObjectStore.Region)
	setString(&c.ObjectStore.Bucket, src.ObjectStore.Bucket)
	setString(&c.ObjectStore.AccessKey, src.ObjectStore.AccessKey)
	setString(&c.ObjectStore.SecretKey, src.ObjectStore.SecretKey)
	setString(&c.ObjectStore.Prefix, src.ObjectStore.Prefix)
	if src.UseSSL != nil {
		c.ObjectStore.UseSSL = *src.UseSSL
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func loadFromFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, err
	}

	type rawConfig struct {
		Target    string   `yaml:"target"`
		Output    string   `yaml:"output"`
		Interval  *seconds `yaml:"interval"`
		Timeout   *seconds `yaml:"timeout"`
		Threshold string   `yaml:"threshold"`
		Scanner   struct {
			Binary string   `yaml:"binary"`
			Args   []string `yaml:"args"`
		} `yaml:"scanner"`
		Retry struct {
			Attempts  *int    `yaml:"attempts"`
			BaseDelay seconds `yaml:"baseDelay"`
			MaxDelay  seconds `yaml:"maxDelay"`
		} `yaml:"retry"`
		Metrics struct {
			PushURL string `yaml:"pushURL"`
			Job     string `yaml:"job"`
			Listen  string `yaml:"listen"`
		} `yaml:"metrics"`
		Chat struct {
			WebhookURL string `yaml:"webhookURL"`
		} `yaml:"chat"`
		Email struct {
			Host     string      `yaml:"host"`
			Port     int         `yaml:"port"`
			Username string      `yaml:"username"`
			Password string      `yaml:"password"`
			From     string      `yaml:"from"`
			To       addressList `yaml:"to"`
			Subject  string      `yaml:"subject"`
		} `yaml:"email"`
		Renderer struct {
			Command   string `yaml:"command"`
			OutputDir string `yaml:"outputDir"`
		} `yaml:"renderer"`
		ObjectStore struct {
			Endpoint  string `yaml:"endpoint"`
			Region    string `yaml:"region"`
			Bucket    string `yaml:"bucket"`
			AccessKey string `yaml:"accessKey"`
			SecretKey string `yaml:"secretKey"`
			UseSSL    *bool  `yaml:"useSSL"`
			Prefix    string `yaml:"prefix"`
		} `yaml:"objectStore"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Overrides{}, &ConfigError{Setting: path, Reason: err.Error()}
	}

	over := Overrides{
		Target:        raw.Target,
		Output:        raw.Output,
		Threshold:     raw.Threshold,
		ScannerBinary: raw.Scanner.Binary,
		ScannerArgs:   raw.Scanner.Args,
		BaseDelay:     time.Duration(raw.Retry.BaseDelay),
		MaxDelay:      time.Duration(raw.Retry.MaxDelay),
		Metrics:       MetricsConfig(raw.Metrics),
		Chat:          ChatConfig(raw.Chat),
		Email: EmailConfig{
			Host:     raw.Email.Host,
			Port:     raw.Email.Port,
			Username: raw.Email.Username,
			Password: raw.Email.Password,
			From:     raw.Email.From,
			To:       raw.Email.To,
			Subject:  raw.Email.Subject,
		},
		Renderer: RendererConfig(raw.Renderer),
		ObjectStore: ObjectStoreConfig{
			Endpoint:  raw.ObjectStore.Endpoint,
			Region:    raw.ObjectStore.Region,
			Bucket:    raw.ObjectStore.Bucket,
			AccessKey: raw.ObjectStore.AccessKey,
			SecretKey: raw.ObjectStore.SecretKey,
			Prefix:    raw.ObjectStore.Prefix,
		},
		UseSSL: raw.ObjectStore.UseSSL,
	}

	if raw.Interval != nil {
		over.Interval = time.Duration(*raw.Interval)
		over.IntervalSet = true
	}
	if raw.Timeout != nil {
		over.Timeout = time.Duration(*raw.Timeout)
		over.TimeoutSet = true
	}
	if raw.Retry.Attempts != nil {
		over.Retries = *raw.Retry.Attempts
		over.RetriesSet = true
	}

	return over, nil
}

// ParseSeconds accepts a bare number of seconds ("300") or a Go duration ("5m").
func ParseSeconds(input string) (time.Duration, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// ParseAddressList splits comma, semicolon or newline separated recipients.
func ParseAddressList(input string) []string {
	return cleanList(strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	}))
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		candidate := strings.TrimSpace(v)
		if candidate != "" {
			out = append(out, candidate)
		}
	}
	return out
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// seconds decodes YAML durations written either as seconds or as a duration string.
type seconds time.Duration

func (s *seconds) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	d, err := ParseSeconds(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = seconds(d)
	return nil
}

// addressList enables YAML fields that can be specified as a scalar or sequence.
type addressList []string

func (a *addressList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var out []string
		for _, node := range value.Content {
			out = append(out, node.Value)
		}
		*a = cleanList(out)
	case yaml.ScalarNode:
		*a = ParseAddressList(value.Value)
	default:
		return fmt.Errorf("unsupported YAML type for recipients")
	}
	return nil
}
