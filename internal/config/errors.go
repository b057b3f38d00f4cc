package config

import "fmt"

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Setting, e.Reason)
}
