package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

// LoadConfig reads the YAML agent configuration at path on top of
// model.DefaultConfig and then applies environment overrides. A missing
// file is not an error: the defaults plus environment are enough to run.
func LoadConfig(path string) (model.Config, error) {
	config := model.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return config, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return config, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	config.WsURL = getenv("WS_URL", config.WsURL)
	config.WsSecret = getenv("WS_SECRET", config.WsSecret)
	config.RestaurantID = getenv("RESTAURANT_ID", config.RestaurantID)
	config.AgentName = getenv("AGENT_NAME", config.AgentName)
	config.Receipt.StoreName = getenv("STORE_NAME", config.Receipt.StoreName)

	if err := validateConfig(config); err != nil {
		return config, err
	}
	return config, nil
}

func validateConfig(config model.Config) error {
	if config.WsURL == "" {
		return errors.New("ws_url is required")
	}
	if config.Printer.PrintTimeout <= 0 {
		return fmt.Errorf("printer.print_timeout must be positive, got %s", config.Printer.PrintTimeout)
	}
	if config.Channel.ReconnectDelay <= 0 {
		return fmt.Errorf("channel.reconnect_delay must be positive, got %s", config.Channel.ReconnectDelay)
	}
	switch config.Receipt.Mode {
	case "text", "html":
	default:
		return fmt.Errorf("receipt.mode must be text or html, got %q", config.Receipt.Mode)
	}
	return nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
