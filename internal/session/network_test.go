package session

import (
	"testing"
	"time"
)

func TestRequestFactsIncludesHeaders(t *testing.T) {
	ts := time.Now()
	facts := requestFacts("req-1", "GET", "https://api.example.com/orders", map[string]string{
		"X-Request-Id": "REQ-42",
	}, ts)

	if len(facts) != 2 {
		t.Fatalf("expected net_request + 1 net_header fact, got %d: %#v", len(facts), facts)
	}
	if facts[0].Predicate != "net_request" {
		t.Fatalf("expected first fact to be net_request, got %s", facts[0].Predicate)
	}
	if facts[0].Args[0] != "req-1" || facts[0].Args[1] != "GET" || facts[0].Args[2] != "https://api.example.com/orders" {
		t.Fatalf("unexpected net_request args: %#v", facts[0].Args)
	}

	header := facts[1]
	if header.Predicate != "net_header" {
		t.Fatalf("expected second fact to be net_header, got %s", header.Predicate)
	}
	if header.Args[0] != "req-1" || header.Args[1] != "x-request-id" || header.Args[2] != "REQ-42" {
		t.Fatalf("unexpected net_header args: %#v", header.Args)
	}
}

func TestRequestFactsWithNoHeaders(t *testing.T) {
	facts := requestFacts("req-2", "POST", "https://api.example.com/login", nil, time.Now())
	if len(facts) != 1 {
		t.Fatalf("expected only the net_request fact, got %d: %#v", len(facts), facts)
	}
}

func TestResponseFactsCarriesStatus(t *testing.T) {
	facts := responseFacts("req-1", 502, nil, time.Now())
	if len(facts) != 1 {
		t.Fatalf("expected only the net_response fact, got %d: %#v", len(facts), facts)
	}
	if facts[0].Predicate != "net_response" {
		t.Fatalf("expected net_response, got %s", facts[0].Predicate)
	}
	if facts[0].Args[0] != "req-1" || facts[0].Args[1] != 502 {
		t.Fatalf("unexpected net_response args: %#v", facts[0].Args)
	}
}

func TestStringifyHeadersEmptyReturnsNil(t *testing.T) {
	headers := stringifyHeaders(nil)
	if headers != nil {
		t.Fatalf("expected nil for empty header set, got %#v", headers)
	}
}
