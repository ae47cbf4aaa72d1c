package backendapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"offline_sync_agent/internal/domain/wire"
)

// response is the envelope every endpoint replies with: a success flag, an optional
// error text and the payload, either at the top level or under "data".
type response struct {
	Success *bool
	Error   string
	body    []byte
	fields  wire.Fields
}

func parseResponse(data []byte) (*response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &response{fields: wire.Fields{}}, nil
	}
	if trimmed[0] == '[' {
		// bare list reply
		return &response{body: trimmed, fields: wire.Fields{"data": json.RawMessage(trimmed)}}, nil
	}
	f, err := wire.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	r := &response{body: trimmed, fields: f, Error: f.String("error", "message")}
	if _, ok := f.Raw("success"); ok {
		ok := f.Bool("success")
		r.Success = &ok
	}
	return r, nil
}

func (r *response) ok() bool {
	return r.Success == nil || *r.Success
}

// payload returns the first named field at the top level or inside "data". A "data"
// field holding none of the names is itself the payload.
func (r *response) payload(names ...string) (json.RawMessage, bool) {
	if raw, ok := r.fields.Raw(names...); ok {
		return raw, true
	}
	data, ok := r.fields.Raw("data", "result")
	if !ok {
		return nil, false
	}
	if nested, err := wire.Parse(data); err == nil {
		if raw, ok := nested.Raw(names...); ok {
			return raw, true
		}
	}
	return data, true
}

// decodeItems decodes a list payload item by item; malformed items are skipped.
// rawItemsOf returns the list items verbatim, skipping those that do not decode as T.
func rawItemsOf[T any](r *response, names ...string) ([]json.RawMessage, error) {
	items, err := decodeItems[json.RawMessage](r, names...)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, item := range items {
		var v T
		if json.Unmarshal(item, &v) == nil {
			out = append(out, item)
		}
	}
	return out, nil
}

func decodeItems[T any](r *response, names ...string) ([]T, error) {
	raw, ok := r.payload(names...)
	if !ok {
		return []T{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
