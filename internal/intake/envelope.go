package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType is the only envelope type the bridge relays.
const MessageType = "SMART_SYNC_DATA"

var (
	// ErrUnsupportedMessage is returned for envelopes with any other type.
	ErrUnsupportedMessage = errors.New("intake: unsupported message type")

	// ErrEmptyPayload is returned when a payload holds no objects.
	ErrEmptyPayload = errors.New("intake: empty payload")

	// ErrInvalidPayload is returned when the body is not valid JSON.
	ErrInvalidPayload = errors.New("intake: invalid payload")
)

// wrapperKeys are checked, in order, when a top-level object carries no
// patient fields of its own.
var wrapperKeys = []string{"data", "result", "items"}

// Envelope is the bridge message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses raw bridge JSON and rejects foreign message types.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode envelope: %v", ErrInvalidPayload, err)
	}
	if env.Type != MessageType {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnsupportedMessage, env.Type)
	}
	return env, nil
}

// DecodeRecords turns an array-or-object payload into raw records.
func DecodeRecords(payload json.RawMessage) ([]Record, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrInvalidPayload, err)
	}

	records := collect(v, DefaultAliases, 0)
	if len(records) == 0 {
		return nil, ErrEmptyPayload
	}
	return records, nil
}

const maxWrapperDepth = 3

func collect(v any, aliases AliasTable, depth int) []Record {
	switch val := v.(type) {
	case []any:
		out := make([]Record, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, Record(obj))
			}
		}
		return out
	case map[string]any:
		rec := Record(val)
		if hasPatientFields(rec, aliases) || depth >= maxWrapperDepth {
			return []Record{rec}
		}
		folded := rec.folded()
		for _, key := range wrapperKeys {
			inner, ok := folded[key]
			if !ok {
				continue
			}
			if nested := collect(inner, aliases, depth+1); len(nested) > 0 {
				return nested
			}
		}
		return []Record{rec}
	}
	return nil
}

func hasPatientFields(r Record, aliases AliasTable) bool {
	rs := aliases.resolve(r)
	return strings.TrimSpace(rs.String(FieldFileNumber)) != "" || strings.TrimSpace(rs.String(FieldPatientName)) != ""
}
