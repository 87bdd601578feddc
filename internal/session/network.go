package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"browsercore/internal/mangle"
)

// watchNetwork streams CDP network events for a session's page into the
// mangle engine as net_request/net_response/net_header facts for the
// lifetime of the page, so internal/diagnostics can later join them against
// correlated backend log lines. The events are consumed on a background
// goroutine that ends with the page's event stream; watchNetwork itself
// returns at once, and does nothing when the manager has no engine or
// network ingestion is off.
func (m *Manager) watchNetwork(sessionID string, page *rod.Page) {
	if m.engine == nil || !m.networkIngestion {
		return
	}

	go func() {
		wait := page.EachEvent(
			func(ev *proto.NetworkRequestWillBeSent) {
				if ev.Request == nil {
					return
				}
				headers := stringifyHeaders(ev.Request.Headers)
				facts := requestFacts(string(ev.RequestID), ev.Request.Method, ev.Request.URL, headers, time.Now())
				if err := m.engine.AddFacts(context.Background(), facts); err != nil {
					m.log.Debug("net_request fact error", zap.String("session", sessionID), zap.Error(err))
				}
			},
			func(ev *proto.NetworkResponseReceived) {
				if ev.Response == nil {
					return
				}
				headers := stringifyHeaders(ev.Response.Headers)
				facts := responseFacts(string(ev.RequestID), int(ev.Response.Status), headers, time.Now())
				if err := m.engine.AddFacts(context.Background(), facts); err != nil {
					m.log.Debug("net_response fact error", zap.String("session", sessionID), zap.Error(err))
				}
			},
		)
		wait()
	}()
}

// stringifyHeaders renders a CDP header set (values can be non-string JSON)
// into a plain map, lower-casing names the way internal/correlation expects.
func stringifyHeaders(headers proto.NetworkHeaders) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		out[strings.ToLower(name)] = fmt.Sprintf("%v", value)
	}
	return out
}

// requestFacts builds the net_request fact plus one net_header fact per
// header for a single outgoing request. Pulled out of the EachEvent handler
// so it can be tested without a live CDP connection. net_request carries
// the request id, method and URL only; the resource-type and timestamp
// slots declared for it in schemas/decisions.mg are not filled.
func requestFacts(reqID, method, url string, headers map[string]string, ts time.Time) []mangle.Fact {
	facts := []mangle.Fact{{
		Predicate: "net_request",
		Args:      []interface{}{reqID, method, url},
		Timestamp: ts,
	}}
	facts = append(facts, headerFacts(reqID, headers, ts)...)
	return facts
}

// responseFacts builds the net_response fact plus one net_header fact per
// header for a single response. net_response carries the request id and
// status only; the size and duration slots declared in
// schemas/decisions.mg are not filled, so the schema's four-slot rules
// over net_response (slow_network, failing_server_response) do not match
// these facts.
func responseFacts(reqID string, status int, headers map[string]string, ts time.Time) []mangle.Fact {
	facts := []mangle.Fact{{
		Predicate: "net_response",
		Args:      []interface{}{reqID, status},
		Timestamp: ts,
	}}
	facts = append(facts, headerFacts(reqID, headers, ts)...)
	return facts
}

func headerFacts(reqID string, headers map[string]string, ts time.Time) []mangle.Fact {
	facts := make([]mangle.Fact, 0, len(headers))
	for name, value := range headers {
		facts = append(facts, mangle.Fact{
			Predicate: "net_header",
			Args:      []interface{}{reqID, strings.ToLower(name), value},
			Timestamp: ts,
		})
	}
	return facts
}
