package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound job documents arrive from the workflow tool in up to two envelope
// layers: a top-level "job" object, and/or a "payload" field holding the job
// as a JSON string or base64-encoded JSON. DecodeJob unwraps whatever it is
// handed and returns the bare RenderJob.

const maxEnvelopeDepth = 2

// DecodeJob parses a job document, unwrapping envelope layers as needed.
func DecodeJob(data []byte) (*RenderJob, error) {
	raw, err := unwrapEnvelope(data, maxEnvelopeDepth)
	if err != nil {
		return nil, err
	}

	var job RenderJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job document: %w", err)
	}
	return &job, nil
}

func unwrapEnvelope(data []byte, depth int) ([]byte, error) {
	if depth < 0 {
		return nil, fmt.Errorf("job document nested too deeply")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("job document is not a JSON object: %w", err)
	}

	if inner, ok := envelope["job"]; ok {
		return unwrapEnvelope(inner, depth-1)
	}

	if payload, ok := envelope["payload"]; ok {
		var s string
		if err := json.Unmarshal(payload, &s); err == nil {
			decoded := decodePayloadString(s)
			return unwrapEnvelope(decoded, depth-1)
		}
		// Non-string payload: treat it as the job object itself
		return unwrapEnvelope(payload, depth-1)
	}

	return data, nil
}

// decodePayloadString turns a payload string into JSON bytes. The string is
// either raw JSON or base64-encoded JSON; base64 is detected by attempting a
// decode and checking the result starts like a JSON value.
func decodePayloadString(s string) []byte {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed)
	}
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil {
		return decoded
	}
	return []byte(trimmed)
}
