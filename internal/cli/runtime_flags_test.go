package cli

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/imagegate/internal/config"
)

func TestRuntimeFlagSetToOverrides(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]string
		expected config.Overrides
	}{
		{
			name:     "no flags changed returns empty overrides",
			expected: config.Overrides{},
		},
		{
			name:     "target and output",
			args:     map[string]string{"target": "app:1.0", "output": "out/{timestamp}.json"},
			expected: config.Overrides{Target: "app:1.0", Output: "out/{timestamp}.json"},
		},
		{
			name:     "interval in seconds",
			args:     map[string]string{"interval": "300"},
			expected: config.Overrides{Interval: 5 * time.Minute, IntervalSet: true},
		},
		{
			name:     "explicit zero interval is kept",
			args:     map[string]string{"interval": "0"},
			expected: config.Overrides{IntervalSet: true},
		},
		{
			name:     "timeout as duration",
			args:     map[string]string{"timeout": "2m"},
			expected: config.Overrides{Timeout: 2 * time.Minute, TimeoutSet: true},
		},
		{
			name:     "threshold and retries",
			args:     map[string]string{"threshold": "high", "retries": "3"},
			expected: config.Overrides{Threshold: "high", Retries: 3, RetriesSet: true},
		},
		{
			name: "metrics endpoints and scanner",
			args: map[string]string{"listen": ":9102", "pushgateway": "http://pg:9091", "scanner": "/opt/trivy"},
			expected: config.Overrides{
				ScannerBinary: "/opt/trivy",
				Metrics:       config.MetricsConfig{Listen: ":9102", PushURL: "http://pg:9091"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			flags := &runtimeFlagSet{}
			bindRuntimeFlags(cmd, flags)

			for name, value := range tt.args {
				if err := cmd.Flags().Set(name, value); err != nil {
					t.Fatalf("set %s: %v", name, err)
				}
			}

			got, err := flags.toOverrides(cmd)
			if err != nil {
				t.Fatalf("toOverrides: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("toOverrides() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestRuntimeFlagSetRejectsBadDurations(t *testing.T) {
	for _, flag := range []string{"interval", "timeout"} {
		cmd := &cobra.Command{}
		flags := &runtimeFlagSet{}
		bindRuntimeFlags(cmd, flags)
		if err := cmd.Flags().Set(flag, "whenever"); err != nil {
			t.Fatalf("set: %v", err)
		}

		_, err := flags.toOverrides(cmd)
		var cfgErr *config.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Setting != "--"+flag {
			t.Fatalf("%s: expected ConfigError, got %v", flag, err)
		}
	}
}

func TestBindRuntimeFlagsRegistersAll(t *testing.T) {
	cmd := &cobra.Command{}
	bindRuntimeFlags(cmd, &runtimeFlagSet{})

	for _, name := range []string{"target", "output", "interval", "threshold", "timeout", "retries", "listen", "scanner", "pushgateway"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}
}
