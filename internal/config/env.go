package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	envTarget    = "IMAGEGATE_TARGET"
	envOutput    = "IMAGEGATE_OUTPUT"
	envInterval  = "IMAGEGATE_INTERVAL"
	envTimeout   = "IMAGEGATE_TIMEOUT"
	envThreshold = "IMAGEGATE_THRESHOLD"
	envRetries   = "IMAGEGATE_RETRIES"
	envScanner   = "IMAGEGATE_SCANNER"

	envPushURL    = "IMAGEGATE_PUSHGATEWAY_URL"
	envMetricsJob = "IMAGEGATE_METRICS_JOB"
	envListen     = "IMAGEGATE_LISTEN"

	envChatWebhook = "IMAGEGATE_CHAT_WEBHOOK"

	envSMTPHost     = "IMAGEGATE_SMTP_HOST"
	envSMTPPort     = "IMAGEGATE_SMTP_PORT"
	envSMTPUsername = "IMAGEGATE_SMTP_USERNAME"
	envSMTPPassword = "IMAGEGATE_SMTP_PASSWORD"
	envMailFrom     = "IMAGEGATE_MAIL_FROM"
	envMailTo       = "IMAGEGATE_MAIL_TO"

	envRenderCommand = "IMAGEGATE_RENDER_COMMAND"

	envS3Endpoint  = "IMAGEGATE_S3_ENDPOINT"
	envS3Region    = "IMAGEGATE_S3_REGION"
	envS3Bucket    = "IMAGEGATE_S3_BUCKET"
	envS3AccessKey = "IMAGEGATE_S3_ACCESS_KEY"
	envS3SecretKey = "IMAGEGATE_S3_SECRET_KEY"
	envS3UseSSL    = "IMAGEGATE_S3_USE_SSL"
	envS3Prefix    = "IMAGEGATE_S3_PREFIX"
)

// overridesFromEnv reads IMAGEGATE_* variables. Secrets are expected here rather than in
// the config file.
func overridesFromEnv() (Overrides, error) {
	ov := Overrides{
		Target:        os.Getenv(envTarget),
		Output:        os.Getenv(envOutput),
		Threshold:     os.Getenv(envThreshold),
		ScannerBinary: os.Getenv(envScanner),
		Metrics: MetricsConfig{
			PushURL: os.Getenv(envPushURL),
			Job:     os.Getenv(envMetricsJob),
			Listen:  os.Getenv(envListen),
		},
		Chat: ChatConfig{WebhookURL: os.Getenv(envChatWebhook)},
		Email: EmailConfig{
			Host:     os.Getenv(envSMTPHost),
			Username: os.Getenv(envSMTPUsername),
			Password: os.Getenv(envSMTPPassword),
			From:     os.Getenv(envMailFrom),
			To:       ParseAddressList(os.Getenv(envMailTo)),
		},
		Renderer: RendererConfig{Command: os.Getenv(envRenderCommand)},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  os.Getenv(envS3Endpoint),
			Region:    os.Getenv(envS3Region),
			Bucket:    os.Getenv(envS3Bucket),
			AccessKey: os.Getenv(envS3AccessKey),
			SecretKey: os.Getenv(envS3SecretKey),
			Prefix:    os.Getenv(envS3Prefix),
		},
	}

	if value := os.Getenv(envInterval); value != "" {
		d, err := ParseSeconds(value)
		if err != nil {
			return ov, &ConfigError{Setting: envInterval, Reason: err.Error()}
		}
		ov.Interval, ov.IntervalSet = d, true
	}

	if value := os.Getenv(envTimeout); value != "" {
		d, err := ParseSeconds(value)
		if err != nil {
			return ov, &ConfigError{Setting: envTimeout, Reason: err.Error()}
		}
		ov.Timeout, ov.TimeoutSet = d, true
	}

	if value := os.Getenv(envRetries); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return ov, &ConfigError{Setting: envRetries, Reason: "not an integer: " + value}
		}
		ov.Retries, ov.RetriesSet = n, true
	}

	if value := os.Getenv(envSMTPPort); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return ov, &ConfigError{Setting: envSMTPPort, Reason: "not an integer: " + value}
		}
		ov.Email.Port = n
	}

	if value := os.Getenv(envS3UseSSL); value != "" {
		parsed := strings.EqualFold(value, "true") || value == "1"
		ov.UseSSL = &parsed
	}

	return ov, nil
}
