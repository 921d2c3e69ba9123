package mcpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultConfigPath is where the chat command looks for server definitions
// when no --mcp-config flag is given.
const DefaultConfigPath = "mcp.json"

type Config struct {
	Servers []ServerConfig `json:"mcp_servers"`
}

type ServerConfig struct {
	Name       string            `json:"name"`
	Transport  string            `json:"transport"`
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Dir        string            `json:"dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	InheritEnv *bool             `json:"inherit_env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Disabled   bool              `json:"disabled,omitempty"`
}

func LoadConfig(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// enabled returns the entries worth dialing. Disabled entries are silently
// dropped; unnamed and duplicate-named ones come back as problems.
func (c Config) enabled() ([]ServerConfig, []string) {
	seen := make(map[string]bool, len(c.Servers))
	var keep []ServerConfig
	var problems []string
	for i, sc := range c.Servers {
		if sc.Disabled {
			continue
		}
		name := strings.TrimSpace(sc.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("server %d: name is required", i))
		case seen[name]:
			problems = append(problems, fmt.Sprintf("server %s: name already used", name))
		default:
			seen[name] = true
			keep = append(keep, sc)
		}
	}
	return keep, problems
}
