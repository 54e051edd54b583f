package router

import (
	"encoding/json"
	"fmt"

	"agribot/internal/llm"
)

// routingReply is the structured classification the completer is asked to
// produce. Parsing is tolerant of the usual model sloppiness (code fences,
// prose around the object, broken escapes) but yields a typed error on
// anything unusable so the caller can fall back to keywords.
type routingReply struct {
	Primary    string   `json:"primary_handler"`
	Secondary  []string `json:"secondary_handlers"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func parseRoutingReply(raw string) (routingReply, error) {
	var reply routingReply

	candidate := llm.ExtractJSON(raw)
	if candidate == "" {
		return reply, fmt.Errorf("no JSON object in reply")
	}

	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		if err2 := json.Unmarshal([]byte(llm.SanitizeJSONEscapes(candidate)), &reply); err2 != nil {
			return reply, fmt.Errorf("unmarshal routing reply: %w", err)
		}
	}

	if reply.Primary == "" {
		return reply, fmt.Errorf("routing reply missing primary handler")
	}
	if reply.Confidence < 0 {
		reply.Confidence = 0
	}
	if reply.Confidence > 1 {
		reply.Confidence = 1
	}
	return reply, nil
}
