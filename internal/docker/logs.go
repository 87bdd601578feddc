// Package docker tails the backend containers a browsercore session's page
// talks to while automation runs, so a tool failure can be explained by what
// the backend was doing at the time rather than just by what the browser
// saw. Log lines are parsed into a common shape and handed to
// internal/correlation to be matched against the net_request/net_header
// facts the perception pipeline records for the session.
package docker

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// LogEntry is one parsed line from a container's log stream.
type LogEntry struct {
	Container string    `json:"container"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`   // ERROR, WARNING, INFO, DEBUG
	Tag       string    `json:"tag"`     // CHROME, TRACEBACK, NEXTJS, ...
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// Client shells out to `docker logs` for container log retrieval. No Docker
// SDK dependency is needed for a read-only tail of a handful of containers.
type Client struct {
	containers []string
	logWindow  time.Duration
	host       string
}

// NewClient builds a log client bound to the given containers.
func NewClient(containers []string, logWindow time.Duration, host string) *Client {
	return &Client{containers: containers, logWindow: logWindow, host: host}
}

// QueryLogs fetches and parses logs from every configured container emitted
// since the given time. A single container's failure (stopped, never
// started, docker binary missing) doesn't abort the others.
func (c *Client) QueryLogs(ctx context.Context, since time.Time) ([]LogEntry, error) {
	var all []LogEntry
	for _, container := range c.containers {
		entries, err := c.queryContainer(ctx, container, since)
		if err != nil {
			continue
		}
		all = append(all, entries...)
	}
	return all, nil
}

func (c *Client) queryContainer(ctx context.Context, container string, since time.Time) ([]LogEntry, error) {
	args := []string{"logs", "--timestamps", "--since", since.Format(time.RFC3339)}
	if c.host != "" {
		args = append([]string{"-H", c.host}, args...)
	}
	args = append(args, container)

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker logs %s: %w (output: %s)", container, err, string(output))
	}
	return c.parseLogs(container, string(output)), nil
}

var dockerTimestampPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T[\d:.]+Z?)\s+(.*)$`)

// lineFormat recognizes one log-line dialect and classifies a match into a
// tag and level. A container emits one dialect at a time in practice, but
// the table is tried top-to-bottom per line since a single stream can mix
// app output with the runtime's own logging.
type lineFormat struct {
	tag          string
	tagFromGroup bool // bracketed tag carries its own name, captured from m[1]
	pattern      *regexp.Regexp
	level        func(tag string, matches []string) string
}

var lineFormats = []lineFormat{
	{
		// Chrome/Chromium's own --enable-logging=stderr format, e.g.
		// "[0125/120933.946739:ERROR:bus.cc(392)] Failed to connect to the bus".
		// Seen when the container running the CDP target logs its own
		// internal diagnostics alongside the page's backend traffic.
		tag:     "CHROME",
		pattern: regexp.MustCompile(`^\[\d{4}/\d{6}\.\d+:(INFO|WARNING|ERROR|FATAL):[^\]]+\]\s*(.*)$`),
		level:   func(_ string, m []string) string { return strings.ToUpper(m[1]) },
	},
	{
		tagFromGroup: true,
		pattern:      regexp.MustCompile(`^\[([A-Z_]+)\]\s+(.*)$`),
		level:        func(tag string, m []string) string { return inferLevelFromTag(m[1], m[2]) },
	},
	{
		pattern: regexp.MustCompile(`^(ERROR|WARNING|INFO|DEBUG|CRITICAL):\s*(.*)$`),
		level:   func(_ string, m []string) string { return strings.ToUpper(m[1]) },
	},
	{
		pattern: regexp.MustCompile(`^.*\|\s*(ERROR|WARNING|INFO|DEBUG)\s*\|\s*(.*)$`),
		level:   func(_ string, m []string) string { return strings.ToUpper(m[1]) },
	},
	{
		tag:     "NEXTJS",
		pattern: regexp.MustCompile(`^-\s+(error|warn|event|wait|ready)\s+(.*)$`),
		level:   func(_ string, m []string) string { return inferLevelFromNextjs(m[1]) },
	},
}

var (
	tracebackStart = regexp.MustCompile(`^Traceback \(most recent call last\):`)
	exceptionLine  = regexp.MustCompile(`^(\w+Error|\w+Exception):\s*(.*)$`)
)

// parseLogs turns one container's raw `docker logs` output into entries,
// classifying each line against lineFormats. A Python traceback header
// opens one ERROR entry that absorbs the `File ...` lines right after it;
// any other line, including an indented source line, closes that entry
// and is parsed on its own.
func (c *Client) parseLogs(container string, output string) []LogEntry {
	var entries []LogEntry
	scanner := bufio.NewScanner(strings.NewReader(output))
	var traceback strings.Builder
	inTraceback := false

	flushTraceback := func() {
		if traceback.Len() == 0 {
			return
		}
		entries = append(entries, LogEntry{
			Container: container,
			Timestamp: time.Now(),
			Level:     "ERROR",
			Tag:       "TRACEBACK",
			Message:   traceback.String(),
			Raw:       traceback.String(),
		})
		traceback.Reset()
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry := LogEntry{Container: container, Timestamp: time.Now(), Level: "INFO", Raw: line}
		remaining := line
		if matches := dockerTimestampPattern.FindStringSubmatch(line); len(matches) == 3 {
			if ts, err := time.Parse(time.RFC3339Nano, matches[1]); err == nil {
				entry.Timestamp = ts
			} else if ts, err := time.Parse("2006-01-02T15:04:05.999999999Z07:00", matches[1]); err == nil {
				entry.Timestamp = ts
			}
			remaining = matches[2]
		}

		if tracebackStart.MatchString(remaining) {
			inTraceback = true
			traceback.Reset()
			traceback.WriteString(remaining)
			continue
		}
		if inTraceback {
			switch {
			case exceptionLine.MatchString(remaining):
				traceback.WriteString("\n" + remaining)
				flushTraceback()
				inTraceback = false
				continue
			case strings.HasPrefix(remaining, " "), strings.HasPrefix(remaining, "\t"), strings.HasPrefix(remaining, "File "):
				traceback.WriteString("\n" + remaining)
				continue
			default:
				flushTraceback()
				inTraceback = false
			}
		}

		matched := false
		for _, format := range lineFormats {
			m := format.pattern.FindStringSubmatch(remaining)
			if m == nil {
				continue
			}
			if format.tagFromGroup {
				entry.Tag = m[1]
			} else if format.tag != "" {
				entry.Tag = format.tag
			}
			entry.Level = format.level(entry.Tag, m)
			entry.Message = m[len(m)-1]
			entries = append(entries, entry)
			matched = true
			break
		}
		if !matched {
			entry.Level = inferLevelFromMessage(remaining)
			entry.Message = remaining
			entries = append(entries, entry)
		}
	}
	if inTraceback {
		flushTraceback()
	}
	return entries
}

func inferLevelFromTag(tag, message string) string {
	switch tag {
	case "ERROR", "CRITICAL", "FATAL", "EXCEPTION":
		return "ERROR"
	case "WARNING", "WARN":
		return "WARNING"
	default:
		return inferLevelFromMessage(message)
	}
}

func inferLevelFromNextjs(eventType string) string {
	switch strings.ToLower(eventType) {
	case "error":
		return "ERROR"
	case "warn":
		return "WARNING"
	default:
		return "INFO"
	}
}

var (
	errorMessagePatterns = []string{
		"error", "exception", "failed", "failure", "traceback",
		"critical", "fatal", "panic", "crash", "segfault",
		"keyerror", "typeerror", "valueerror", "attributeerror",
		"connectionerror", "timeout", "refused", "denied",
	}
	warningMessagePatterns = []string{
		"warning", "warn", "deprecated", "slow", "retry",
		"fallback", "degraded", "skipping", "missing",
	}
)

func inferLevelFromMessage(message string) string {
	msg := strings.ToLower(message)
	for _, pattern := range errorMessagePatterns {
		if strings.Contains(msg, pattern) {
			return "ERROR"
		}
	}
	for _, pattern := range warningMessagePatterns {
		if strings.Contains(msg, pattern) {
			return "WARNING"
		}
	}
	return "INFO"
}

// FilterErrors returns only ERROR/CRITICAL/WARNING entries.
func (c *Client) FilterErrors(logs []LogEntry) []LogEntry {
	var out []LogEntry
	for _, l := range logs {
		if l.Level == "ERROR" || l.Level == "WARNING" || l.Level == "CRITICAL" {
			out = append(out, l)
		}
	}
	return out
}

// FilterByLevel returns entries matching the given level exactly.
func (c *Client) FilterByLevel(logs []LogEntry, level string) []LogEntry {
	var out []LogEntry
	for _, l := range logs {
		if l.Level == level {
			out = append(out, l)
		}
	}
	return out
}

// FilterByContainer returns entries from a single container.
func (c *Client) FilterByContainer(logs []LogEntry, container string) []LogEntry {
	var out []LogEntry
	for _, l := range logs {
		if l.Container == container {
			out = append(out, l)
		}
	}
	return out
}

// ContainerHealth summarizes one container's error/warning volume over the
// queried window.
type ContainerHealth struct {
	Container    string `json:"container"`
	ErrorCount   int    `json:"error_count"`
	WarningCount int    `json:"warning_count"`
	Status       string `json:"status"` // healthy, degraded, unhealthy
}

// AnalyzeHealth buckets a batch of log entries into per-container health, so
// a diagnostics caller can tell whether a tool failure coincided with a
// backend container already in distress.
func (c *Client) AnalyzeHealth(logs []LogEntry) map[string]ContainerHealth {
	health := make(map[string]ContainerHealth, len(c.containers))
	for _, container := range c.containers {
		health[container] = ContainerHealth{Container: container, Status: "healthy"}
	}
	for _, log := range logs {
		h := health[log.Container]
		h.Container = log.Container
		switch log.Level {
		case "ERROR", "CRITICAL":
			h.ErrorCount++
		case "WARNING":
			h.WarningCount++
		}
		health[log.Container] = h
	}
	for container, h := range health {
		switch {
		case h.ErrorCount > 5:
			h.Status = "unhealthy"
		case h.ErrorCount > 0 || h.WarningCount > 10:
			h.Status = "degraded"
		}
		health[container] = h
	}
	return health
}
