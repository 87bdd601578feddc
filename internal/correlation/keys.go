// Package correlation extracts normalized trace/request identifiers from
// network headers and backend log lines, so internal/diagnostics can match
// a container log entry against the net_request/net_header facts the
// perception pipeline recorded for the network traffic a browsercore
// session's page generated.
package correlation

import (
	"regexp"
	"strings"
)

// Key is a normalized correlation identifier: a type (request_id,
// correlation_id, trace_id) paired with its lowercased, trimmed value.
type Key struct {
	Type  string
	Value string
}

var (
	traceparentPattern = regexp.MustCompile(`(?i)^\s*([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})\s*$`)
	cloudTracePattern  = regexp.MustCompile(`(?i)^\s*([0-9a-f]{32})(?:/[0-9]+)?(?:;o=\d+)?\s*$`)
	b3SinglePattern    = regexp.MustCompile(`(?i)^\s*([0-9a-f]{16,32})-[0-9a-f]{16}(?:-[01d](?:-[0-9a-f]{16})?)?\s*$`)
	xrayPattern        = regexp.MustCompile(`(?i)root=(1-[0-9a-f]{8}-[0-9a-f]{24})`)

	requestIDPattern   = regexp.MustCompile(`(?i)\b(?:x-request-id|request[_-]?id)\b["']?\s*(?:=|:)\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`)
	correlationPattern = regexp.MustCompile(`(?i)\b(?:x-correlation-id|correlation[_-]?id)\b["']?\s*(?:=|:)\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`)
	traceIDPattern     = regexp.MustCompile(`(?i)\b(?:x-trace-id|trace[_-]?id|x-b3-traceid)\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{16,64})`)
	traceparentMsgPat  = regexp.MustCompile(`(?i)\btraceparent\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2})`)
	cloudTraceMsgPat   = regexp.MustCompile(`(?i)\bx-cloud-trace-context\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{32})(?:/[0-9]+)?`)
)

// headerKeyTypes maps a lowercased header name straight to a correlation
// key type for headers whose value needs no further normalization beyond
// the usual trim/lowercase/punctuation strip.
var headerKeyTypes = map[string]string{
	"x-request-id":     "request_id",
	"request-id":       "request_id",
	"request_id":       "request_id",
	"x-correlation-id": "correlation_id",
	"correlation-id":   "correlation_id",
	"correlation_id":   "correlation_id",
	"x-correlationid":  "correlation_id",
	"x-trace-id":       "trace_id",
	"trace-id":         "trace_id",
	"trace_id":         "trace_id",
	"x-b3-traceid":     "trace_id",
}

// FromHeader extracts normalized correlation keys from a single network
// header name/value pair, as recorded in a net_header fact.
func FromHeader(name, value string) []Key {
	headerName := strings.ToLower(strings.TrimSpace(name))
	headerValue := normalizeValue(value)
	if headerName == "" || headerValue == "" {
		return nil
	}

	var keys []Key
	if keyType, ok := headerKeyTypes[headerName]; ok {
		keys = append(keys, Key{Type: keyType, Value: headerValue})
	} else {
		switch headerName {
		case "traceparent":
			if traceID := traceIDFromTraceparent(headerValue); traceID != "" {
				keys = append(keys, Key{Type: "trace_id", Value: traceID})
			}
		case "x-cloud-trace-context":
			if traceID := traceIDFromCloudTrace(headerValue); traceID != "" {
				keys = append(keys, Key{Type: "trace_id", Value: traceID})
			}
		case "b3":
			if traceID := traceIDFromB3Single(headerValue); traceID != "" {
				keys = append(keys, Key{Type: "trace_id", Value: traceID})
			}
		case "x-amzn-trace-id":
			if traceID := traceIDFromXray(headerValue); traceID != "" {
				keys = append(keys, Key{Type: "trace_id", Value: traceID})
			}
		}
	}
	return dedupe(keys)
}

// messagePattern pairs a regexp against a backend log line with the key
// type its capture group produces, optionally routed through a normalizer
// (e.g. unwrapping a traceparent header value down to its bare trace id).
type messagePattern struct {
	keyType   string
	pattern   *regexp.Regexp
	normalize func(string) string
}

var messagePatterns = []messagePattern{
	{keyType: "request_id", pattern: requestIDPattern, normalize: normalizeValue},
	{keyType: "correlation_id", pattern: correlationPattern, normalize: normalizeValue},
	{keyType: "trace_id", pattern: traceIDPattern, normalize: normalizeValue},
	{keyType: "trace_id", pattern: traceparentMsgPat, normalize: traceIDFromTraceparent},
	{keyType: "trace_id", pattern: cloudTraceMsgPat, normalize: traceIDFromCloudTrace},
}

// FromMessage extracts every correlation key embedded in a free-form
// backend log line, for containers that log request context inline rather
// than as structured headers.
func FromMessage(message string) []Key {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return nil
	}

	var keys []Key
	for _, mp := range messagePatterns {
		for _, match := range mp.pattern.FindAllStringSubmatch(msg, -1) {
			if len(match) < 2 {
				continue
			}
			if value := mp.normalize(match[1]); value != "" {
				keys = append(keys, Key{Type: mp.keyType, Value: value})
			}
		}
	}
	return dedupe(keys)
}

func traceIDFromTraceparent(value string) string {
	matches := traceparentPattern.FindStringSubmatch(value)
	if len(matches) != 5 {
		return ""
	}
	return normalizeValue(matches[2])
}

func traceIDFromCloudTrace(value string) string {
	matches := cloudTracePattern.FindStringSubmatch(value)
	if len(matches) != 2 {
		return ""
	}
	return normalizeValue(matches[1])
}

func traceIDFromB3Single(value string) string {
	matches := b3SinglePattern.FindStringSubmatch(value)
	if len(matches) != 2 {
		return ""
	}
	return normalizeValue(matches[1])
}

func traceIDFromXray(value string) string {
	matches := xrayPattern.FindStringSubmatch(value)
	if len(matches) != 2 {
		return ""
	}
	return normalizeValue(matches[1])
}

func normalizeValue(value string) string {
	normalized := strings.TrimSpace(strings.ToLower(value))
	normalized = strings.Trim(normalized, "\"'`")
	normalized = strings.TrimRight(normalized, ".,;:)]}")
	return normalized
}

func dedupe(keys []Key) []Key {
	if len(keys) <= 1 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	uniq := make([]Key, 0, len(keys))
	for _, key := range keys {
		if key.Type == "" || key.Value == "" {
			continue
		}
		token := key.Type + ":" + key.Value
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		uniq = append(uniq, key)
	}
	return uniq
}
