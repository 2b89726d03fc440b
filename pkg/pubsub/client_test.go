package pubsub

import (
	"context"
	"testing"

	"github.com/evdms/dealer-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "evdms-prod"}
	cases := map[string]string{
		"evdms-domain-events":                     "projects/evdms-prod/topics/evdms-domain-events",
		"  evdms-audit-events ":                   "projects/evdms-prod/topics/evdms-audit-events",
		"projects/other/topics/already-qualified": "projects/other/topics/already-qualified",
		"":                                        "",
	}
	for in, want := range cases {
		if got := c.topicResourceName(in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := (&Client{}).topicResourceName("x"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestTopicNamesSkipsBlanks(t *testing.T) {
	names := topicNames(config.PubSubConfig{DomainTopic: "domain", AuditTopic: " "})
	if len(names) != 1 || names[0] != "domain" {
		t.Fatalf("unexpected topic names %v", names)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatalf("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
