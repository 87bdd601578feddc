// Package diagnostics cross-references backend container logs against the
// network activity the perception pipeline has recorded, so a failing tool
// call can be explained by what the server was doing at the time rather than
// just by what the browser saw.
package diagnostics

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"browsercore/internal/config"
	"browsercore/internal/correlation"
	"browsercore/internal/docker"
	"browsercore/internal/mangle"
)

// Finding pairs a container log entry with the network fact it was matched
// against by a shared correlation key.
type Finding struct {
	Key       correlation.Key `json:"key"`
	Log       docker.LogEntry `json:"log"`
	ReqID     string          `json:"req_id"`
	Method    string          `json:"method"`
	URL       string          `json:"url"`
	Status    int             `json:"status,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Correlator joins docker log retrieval, correlation-key extraction, and the
// mangle fact store into a single "what broke" query.
type Correlator struct {
	client *docker.Client
	engine *mangle.Engine
	window time.Duration
	log    *zap.Logger
}

// New builds a Correlator. Returns nil when Docker log integration is
// disabled in configuration, since there is nothing to correlate against.
func New(cfg config.DockerConfig, engine *mangle.Engine, log *zap.Logger) *Correlator {
	if !cfg.Enabled {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Correlator{
		client: docker.NewClient(cfg.Containers, cfg.GetLogWindow(), cfg.Host),
		engine: engine,
		window: cfg.GetLogWindow(),
		log:    log,
	}
}

// Enabled reports whether Docker correlation is wired and available.
func (c *Correlator) Enabled() bool {
	return c != nil
}

// CorrelateSince fetches container logs emitted since the given time, derives
// correlation keys from every net_header fact the engine holds, and returns
// the log entries whose own text or header keys match a recorded request.
func (c *Correlator) CorrelateSince(ctx context.Context, since time.Time) ([]Finding, error) {
	if c == nil {
		return nil, nil
	}

	logs, err := c.client.QueryLogs(ctx, since)
	if err != nil {
		return nil, err
	}

	reqKeys := c.requestKeys()
	findings := make([]Finding, 0, len(logs))
	for _, entry := range logs {
		matchKeys := correlation.FromMessage(entry.Message)
		for _, key := range matchKeys {
			req, ok := reqKeys[key.Type+":"+key.Value]
			if !ok {
				continue
			}
			findings = append(findings, Finding{
				Key:       key,
				Log:       entry,
				ReqID:     req.reqID,
				Method:    req.method,
				URL:       req.url,
				Status:    req.status,
				Timestamp: entry.Timestamp,
			})
		}
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Timestamp.Before(findings[j].Timestamp) })
	return findings, nil
}

type requestInfo struct {
	reqID  string
	method string
	url    string
	status int
}

// requestKeys builds a correlation-key index over every net_header and
// net_request fact currently held by the engine, keyed by "type:value" so it
// can be looked up by the keys extracted from a log line.
func (c *Correlator) requestKeys() map[string]requestInfo {
	index := make(map[string]requestInfo)
	if c.engine == nil {
		return index
	}

	requests := make(map[string]requestInfo)
	for _, f := range c.engine.FactsByPredicate("net_request") {
		if len(f.Args) < 3 {
			continue
		}
		reqID, _ := f.Args[0].(string)
		method, _ := f.Args[1].(string)
		url, _ := f.Args[2].(string)
		requests[reqID] = requestInfo{reqID: reqID, method: method, url: url}
	}
	for _, f := range c.engine.FactsByPredicate("net_response") {
		if len(f.Args) < 2 {
			continue
		}
		reqID, _ := f.Args[0].(string)
		info := requests[reqID]
		if status, ok := toInt(f.Args[1]); ok {
			info.status = status
		}
		requests[reqID] = info
	}

	for _, f := range c.engine.FactsByPredicate("net_header") {
		if len(f.Args) < 3 {
			continue
		}
		reqID, _ := f.Args[0].(string)
		name, _ := f.Args[1].(string)
		value, _ := f.Args[2].(string)
		info, ok := requests[reqID]
		if !ok {
			info = requestInfo{reqID: reqID}
		}
		for _, key := range correlation.FromHeader(name, value) {
			index[key.Type+":"+key.Value] = info
		}
	}

	return index
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
