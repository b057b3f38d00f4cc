package cli

import (
	"github.com/example/imagegate/internal/config"
	"github.com/example/imagegate/internal/render"
	"github.com/example/imagegate/internal/sink"
)

// buildSinks returns the configured sinks in delivery order. The metrics sink is also
// returned on its own so its registry can back the status server.
func buildSinks(cfg config.RuntimeConfig) ([]sink.Sink, *sink.MetricsSink, error) {
	sinks := []sink.Sink{sink.NewFile(cfg.Output)}

	var metrics *sink.MetricsSink
	if cfg.Metrics.Enabled() {
		metrics = sink.NewMetrics(cfg.Metrics.PushURL, cfg.Metrics.Job)
		sinks = append(sinks, metrics)
	}

	sinks = append(sinks, sink.NewChat(cfg.Chat.WebhookURL, nil))

	if cfg.Email.Enabled() {
		var renderer render.Renderer
		if cfg.Renderer.Command != "" {
			r, err := render.NewCommandRenderer(cfg.Renderer.Command, cfg.Renderer.OutputDir)
			if err != nil {
				return nil, nil, &config.ConfigError{Setting: "renderer.command", Reason: err.Error()}
			}
			renderer = r
		}
		sinks = append(sinks, sink.NewEmail(sink.EmailSettings{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Subject:  cfg.Email.Subject,
		}, renderer))
	}

	if cfg.ObjectStore.Enabled() {
		store, err := sink.NewObjectStore(sink.ObjectStoreSettings{
			Endpoint:  cfg.ObjectStore.Endpoint,
			Region:    cfg.ObjectStore.Region,
			Bucket:    cfg.ObjectStore.Bucket,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseSSL:    cfg.ObjectStore.UseSSL,
			Prefix:    cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, nil, &config.ConfigError{Setting: "objectStore", Reason: err.Error()}
		}
		sinks = append(sinks, store)
	}

	return sinks, metrics, nil
}
