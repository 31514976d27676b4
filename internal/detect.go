package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

const defaultGatewayPort = 18789

// GatewayDiscovery is what a local gateway install tells us about itself
type GatewayDiscovery struct {
	ConfigPath string
	URL        string
	Token      string
}

type gatewayInstallConfig struct {
	Gateway struct {
		Port int `json:"port"`
		Auth struct {
			Mode  string `json:"mode"`
			Token string `json:"token"`
		} `json:"auth"`
	} `json:"gateway"`
}

// GatewayConfigPaths lists candidate gateway config files, most preferred
// first: $OPENCLAW_CONFIG_PATH, then the current and legacy home locations.
func GatewayConfigPaths() []string {
	var paths []string
	if p := os.Getenv("OPENCLAW_CONFIG_PATH"); p != "" {
		paths = append(paths, p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return paths
	}
	return append(paths,
		filepath.Join(home, ".openclaw", "openclaw.json"),
		filepath.Join(home, ".clawdbot", "clawdbot.json"),
	)
}

// DetectGateway reads the first gateway config found among paths. ok is
// false when none exists. $OPENCLAW_GATEWAY_TOKEN overrides the file's token.
func DetectGateway(paths []string) (GatewayDiscovery, bool, error) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return GatewayDiscovery{}, false, fmt.Errorf("failed to read %s: %w", path, err)
		}

		found, err := ParseGatewayConfig(data)
		if err != nil {
			return GatewayDiscovery{}, false, fmt.Errorf("%s: %w", path, err)
		}
		found.ConfigPath = path
		if token := os.Getenv("OPENCLAW_GATEWAY_TOKEN"); token != "" {
			found.Token = token
		}
		LogDebug("detected gateway %s from %s", found.URL, path)
		return found, true, nil
	}
	return GatewayDiscovery{}, false, nil
}

// ParseGatewayConfig extracts the gateway endpoint and token from a gateway
// config file. Comments and trailing commas are accepted.
func ParseGatewayConfig(data []byte) (GatewayDiscovery, error) {
	var cfg gatewayInstallConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return GatewayDiscovery{}, fmt.Errorf("invalid gateway config: %w", err)
	}

	port := cfg.Gateway.Port
	if port <= 0 {
		port = defaultGatewayPort
	}
	found := GatewayDiscovery{URL: fmt.Sprintf("ws://127.0.0.1:%d", port)}
	if cfg.Gateway.Auth.Mode == "" || cfg.Gateway.Auth.Mode == "token" {
		found.Token = cfg.Gateway.Auth.Token
	}
	return found, nil
}
