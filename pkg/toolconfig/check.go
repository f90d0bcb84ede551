package toolconfig

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/jingkaihe/dbrain/pkg/logger"
	"github.com/jingkaihe/dbrain/pkg/version"
)

// DefaultCheckTimeout bounds connecting to and listing one server.
const DefaultCheckTimeout = 30 * time.Second

// ErrUnsupportedTransport is reported for servers this checker cannot reach.
var ErrUnsupportedTransport = errors.New("unsupported transport")

// Status is the result of checking one server.
type Status struct {
	Name     string        `json:"name"`
	Type     ServerType    `json:"type"`
	OK       bool          `json:"ok"`
	Skipped  bool          `json:"skipped,omitempty"`
	Tools    []string      `json:"tools,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func newClient(s Server) (*client.Client, error) {
	switch s.Kind() {
	case ServerTypeStdio:
		if s.Command == "" {
			return nil, errors.New("command is required for stdio server")
		}
		env := os.Environ()
		for k, v := range s.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewClient(transport.NewStdio(s.Command, env, s.Args...)), nil
	case ServerTypeSSE:
		if s.URL == "" {
			return nil, errors.New("url is required for sse server")
		}
		tp, err := transport.NewSSE(s.URL, transport.WithHeaders(s.Headers))
		if err != nil {
			return nil, err
		}
		return client.NewClient(tp), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedTransport, "%q", s.Kind())
	}
}

// CheckServer starts the server, runs the MCP handshake and lists its tools.
func CheckServer(ctx context.Context, name string, s Server, timeout time.Duration) (st Status) {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	st = Status{Name: name, Type: s.Kind()}
	start := time.Now()
	defer func() { st.Duration = time.Since(start) }()

	c, err := newClient(s)
	if err != nil {
		st.Skipped = errors.Is(err, ErrUnsupportedTransport)
		st.Error = err.Error()
		return st
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		st.Error = errors.Wrap(err, "start").Error()
		return st
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "dbrain",
		Version: version.Version,
	}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := c.Initialize(ctx, initReq); err != nil {
		st.Error = errors.Wrap(err, "initialize").Error()
		return st
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		st.Error = errors.Wrap(err, "list tools").Error()
		return st
	}
	for _, tool := range res.Tools {
		st.Tools = append(st.Tools, tool.Name)
	}
	sort.Strings(st.Tools)
	st.OK = true
	return st
}

// Check checks every configured server in name order.
func Check(ctx context.Context, cfg *Config, timeout time.Duration) []Status {
	statuses := make([]Status, 0, len(cfg.Servers))
	for _, name := range cfg.Names() {
		log := logger.G(ctx).WithField("server", name)
		log.Info("checking mcp server")
		st := CheckServer(ctx, name, cfg.Servers[name], timeout)
		switch {
		case st.OK:
			log.WithField("tools", len(st.Tools)).Info("mcp server ok")
		case st.Skipped:
			log.WithField("error", st.Error).Warn("mcp server skipped")
		default:
			log.WithField("error", st.Error).Error("mcp server check failed")
		}
		statuses = append(statuses, st)
	}
	return statuses
}
