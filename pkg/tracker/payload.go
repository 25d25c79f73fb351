package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Payload is a JSON object that keeps keys in insertion order. Go maps are
// encoded with sorted keys; use a Payload (or a struct, or json.RawMessage)
// when the stored document must keep the order it was built in.
type Payload struct {
	doc []byte
	err error
}

// NewPayload returns an empty ordered object.
func NewPayload() *Payload {
	return &Payload{doc: []byte("{}")}
}

// Set appends key with value, or replaces value in place if key exists.
// Errors are sticky and reported by EncodePayload.
func (p *Payload) Set(key string, value any) *Payload {
	if p.err != nil {
		return p
	}
	raw, err := marshalCompact(value)
	if err != nil {
		p.err = fmt.Errorf("payload key %q: %w", key, err)
		return p
	}
	doc, err := sjson.SetRawBytes(p.doc, gjson.Escape(key), raw)
	if err != nil {
		p.err = fmt.Errorf("payload key %q: %w", key, err)
		return p
	}
	p.doc = doc
	return p
}

// MarshalJSON returns the ordered document.
func (p *Payload) MarshalJSON() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.doc, nil
}

// EncodePayload renders v as the compact JSON string sent in the payload form
// field. HTML characters and non-ASCII text are kept literally. nil encodes
// as null.
func EncodePayload(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case *Payload:
		if x.err != nil {
			return "", x.err
		}
		return string(x.doc), nil
	case json.RawMessage:
		return compactRaw(x)
	case []byte:
		return compactRaw(x)
	}
	raw, err := marshalCompact(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func compactRaw(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return buf.String(), nil
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
