package router

import "testing"

func TestParseRoutingReplyPlain(t *testing.T) {
	reply, err := parseRoutingReply(`{"primary_handler":"weather","secondary_handlers":["market"],"confidence":0.9,"reasoning":"rain"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Primary != "weather" || len(reply.Secondary) != 1 || reply.Confidence != 0.9 {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestParseRoutingReplySurroundingProse(t *testing.T) {
	raw := "Sure, here's the classification.\n{\"primary_handler\":\"pest\",\"confidence\":0.75,\"reasoning\":\"leaf damage\"}\nLet me know if that helps."
	reply, err := parseRoutingReply(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Primary != "pest" {
		t.Errorf("unexpected primary %q", reply.Primary)
	}
}

func TestParseRoutingReplyConfidenceClamped(t *testing.T) {
	reply, err := parseRoutingReply(`{"primary_handler":"market","confidence":1.7,"reasoning":"x"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Confidence != 1 {
		t.Errorf("confidence should clamp to 1, got %v", reply.Confidence)
	}
}

func TestParseRoutingReplyInvalidEscapes(t *testing.T) {
	raw := `{"primary_handler":"finance","confidence":0.6,"reasoning":"covers 90\% of schemes"}`
	reply, err := parseRoutingReply(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Primary != "finance" {
		t.Errorf("unexpected primary %q", reply.Primary)
	}
}

func TestParseRoutingReplyErrors(t *testing.T) {
	cases := []string{
		"",
		"no json here at all",
		`{"secondary_handlers":["weather"],"confidence":0.5}`,
		`{"primary_handler":`,
	}
	for _, raw := range cases {
		if _, err := parseRoutingReply(raw); err == nil {
			t.Errorf("input %q: expected error", raw)
		}
	}
}
