package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/imagegate/internal/report"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imagegate.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Loader{ConfigPath: filepath.Join(t.TempDir(), "absent.yml")}.Load(Overrides{Target: "app:1.0"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults plus a target should validate: %v", err)
	}
	if cfg.Output != DefaultOutput || cfg.Threshold != report.Critical || cfg.Timeout != DefaultTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Interval != 0 || cfg.Retry.Attempts != 1 || cfg.Scanner.Binary != DefaultScanner {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Metrics.Enabled() || cfg.Email.Enabled() || cfg.ObjectStore.Enabled() {
		t.Fatal("optional sinks must be disabled by default")
	}
}

func TestLoaderLoadWithFileAndEnv(t *testing.T) {
	path := writeConfig(t, `target: registry.local/app:1.0
output: out/scan_{timestamp}.json
interval: 5m
timeout: 120
threshold: high
scanner:
  binary: /opt/trivy
  args: ["--skip-db-update"]
retry:
  attempts: 3
  baseDelay: 1
metrics:
  pushURL: http://pushgateway:9091
email:
  host: smtp.example.test
  from: gate@example.test
  to: "sec@example.test, ops@example.test"
objectStore:
  endpoint: minio:9000
  bucket: scans
  useSSL: false
`)

	t.Setenv(envInterval, "60")
	t.Setenv(envSMTPUsername, "gate")
	t.Setenv(envSMTPPassword, "from-env")
	t.Setenv(envS3AccessKey, "access")
	t.Setenv(envS3SecretKey, "secret")

	cfg, err := Loader{ConfigPath: path}.Load(Overrides{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	if cfg.Target != "registry.local/app:1.0" || cfg.Output != "out/scan_{timestamp}.json" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Interval != time.Minute {
		t.Fatalf("env should override interval, got %s", cfg.Interval)
	}
	if cfg.Timeout != 2*time.Minute || cfg.Threshold != report.High {
		t.Fatalf("unexpected timeout/threshold %s/%s", cfg.Timeout, cfg.Threshold)
	}
	if cfg.Scanner.Binary != "/opt/trivy" || len(cfg.Scanner.Args) != 1 {
		t.Fatalf("unexpected scanner config %+v", cfg.Scanner)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected retry config %+v", cfg.Retry)
	}
	if len(cfg.Email.To) != 2 || cfg.Email.Password != "from-env" || cfg.Email.Port != DefaultSMTPPort {
		t.Fatalf("unexpected email config %+v", cfg.Email)
	}
	if cfg.ObjectStore.UseSSL || cfg.ObjectStore.AccessKey != "access" {
		t.Fatalf("unexpected object store config %+v", cfg.ObjectStore)
	}
}

func TestOverridesWinOverEnv(t *testing.T) {
	t.Setenv(envTarget, "from-env:1")
	t.Setenv(envThreshold, "LOW")

	cfg, err := Loader{ConfigPath: writeConfig(t, "target: from-file:1\n")}.Load(Overrides{
		Target:      "from-flag:1",
		Threshold:   "MEDIUM",
		Retries:     2,
		RetriesSet:  true,
		IntervalSet: true,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Target != "from-flag:1" || cfg.Threshold != report.Medium || cfg.Retry.Attempts != 2 {
		t.Fatalf("flags should win: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		setting string
	}{
		{name: "unknown threshold in file", file: "threshold: severe\n", setting: "threshold"},
		{name: "bad interval env", env: map[string]string{envInterval: "soon"}, setting: envInterval},
		{name: "bad retries env", env: map[string]string{envRetries: "many"}, setting: envRetries},
		{name: "bad smtp port env", env: map[string]string{envSMTPPort: "smtp"}, setting: envSMTPPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "absent.yml")
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			_, err := Loader{ConfigPath: path}.Load(Overrides{})
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Setting != tt.setting {
				t.Fatalf("expected ConfigError for %s, got %v", tt.setting, err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Loader{ConfigPath: writeConfig(t, "interval: [1, 2]\n")}.Load(Overrides{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() RuntimeConfig {
		cfg := DefaultRuntimeConfig()
		cfg.Target = "app:1.0"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*RuntimeConfig)
		setting string
	}{
		{name: "missing target", mutate: func(c *RuntimeConfig) { c.Target = " " }, setting: "target"},
		{name: "negative interval", mutate: func(c *RuntimeConfig) { c.Interval = -time.Second }, setting: "interval"},
		{name: "zero timeout", mutate: func(c *RuntimeConfig) { c.Timeout = 0 }, setting: "timeout"},
		{name: "too many retries", mutate: func(c *RuntimeConfig) { c.Retry.Attempts = MaxRetries + 1 }, setting: "retries"},
		{name: "email without recipients", mutate: func(c *RuntimeConfig) {
			c.Email.Host, c.Email.From = "smtp.example.test", "gate@example.test"
		}, setting: "email.to"},
		{name: "email username without password", mutate: func(c *RuntimeConfig) {
			c.Email = EmailConfig{Host: "smtp", Port: 587, From: "a@b", To: []string{"c@d"}, Username: "gate"}
		}, setting: "email.password"},
		{name: "renderer without email", mutate: func(c *RuntimeConfig) { c.Renderer.Command = "render-pdf" }, setting: "renderer.command"},
		{name: "bucket without endpoint", mutate: func(c *RuntimeConfig) { c.ObjectStore.Bucket = "scans" }, setting: "objectStore.endpoint"},
		{name: "bucket without keys", mutate: func(c *RuntimeConfig) {
			c.ObjectStore.Bucket, c.ObjectStore.Endpoint = "scans", "minio:9000"
		}, setting: "objectStore.accessKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			var cfgErr *ConfigError
			if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Setting != tt.setting {
				t.Fatalf("expected ConfigError for %s, got %v", tt.setting, err)
			}
		})
	}
}

func TestParseSeconds(t *testing.T) {
	tests := map[string]time.Duration{
		"300":   5 * time.Minute,
		" 0 ":   0,
		"90s":   90 * time.Second,
		"1h30m": 90 * time.Minute,
	}
	for in, want := range tests {
		got, err := ParseSeconds(in)
		if err != nil || got != want {
			t.Fatalf("ParseSeconds(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseSeconds("later"); err == nil {
		t.Fatal("expected error for non-duration")
	}
}

func TestParseAddressList(t *testing.T) {
	got := ParseAddressList("a@x.test; b@x.test,\nc@x.test,,")
	if len(got) != 3 || got[2] != "c@x.test" {
		t.Fatalf("unexpected recipients %#v", got)
	}
}
