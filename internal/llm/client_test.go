package llm

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestFinishReason_IsBlocked(t *testing.T) {
	cases := []struct {
		reason FinishReason
		want   bool
	}{
		{FinishComplete, false},
		{FinishLengthCap, false},
		{FinishSafetyBlocked, true},
		{FinishRecitationBlocked, true},
		{FinishOtherBlocked, true},
	}
	for _, c := range cases {
		if got := c.reason.IsBlocked(); got != c.want {
			t.Errorf("%s: IsBlocked() = %v, want %v", c.reason, got, c.want)
		}
	}
}

func TestFinishReasonFrom_MapsUpstreamReasons(t *testing.T) {
	cases := []struct {
		name     string
		upstream string
		want     FinishReason
	}{
		{"stop maps to complete", "stop", FinishComplete},
		{"empty maps to complete", "", FinishComplete},
		{"length maps to length cap", "length", FinishLengthCap},
		{"content filter maps to safety block", "content_filter", FinishSafetyBlocked},
		{"unknown maps to other block", "weird_upstream_reason", FinishOtherBlocked},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg := &schema.Message{ResponseMeta: &schema.ResponseMeta{FinishReason: c.upstream}}
			if got := finishReasonFrom(msg); got != c.want {
				t.Errorf("finishReasonFrom(%q) = %s, want %s", c.upstream, got, c.want)
			}
		})
	}
}

func TestFinishReasonFrom_NilMetaIsComplete(t *testing.T) {
	if got := finishReasonFrom(&schema.Message{}); got != FinishComplete {
		t.Errorf("expected nil response metadata to read as complete, got %s", got)
	}
}
