// Package toolconfig reads the MCP tool configuration handed to the agent
// and checks that the servers it lists are reachable.
package toolconfig

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

type ServerType string

const (
	ServerTypeStdio ServerType = "stdio"
	ServerTypeSSE   ServerType = "sse"
	ServerTypeHTTP  ServerType = "http"
)

// Server is one entry of the mcpServers map.
type Server struct {
	Type    ServerType        `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Kind returns the effective transport, inferring it when Type is unset.
func (s Server) Kind() ServerType {
	switch {
	case s.Type != "":
		return s.Type
	case s.URL != "":
		return ServerTypeSSE
	default:
		return ServerTypeStdio
	}
}

// Config is the agent's tool configuration file.
type Config struct {
	Servers map[string]Server `json:"mcpServers"`
}

// Names returns the server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the tool configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tool config %s", path)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tool config %s", path)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]Server{}
	}
	return &cfg, nil
}
