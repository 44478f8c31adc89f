package sqlite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DOCUMENT ENCODING:
// Documents are encoded with the bson package into relaxed MongoDB Extended
// JSON, so an ObjectID becomes {"$oid":"..."} and a time.Time becomes
// {"$date":"2024-05-01T12:00:00Z"}. The structs only need `bson` tags, the
// same ones the mongo backend uses.
//
// The Extended JSON is then decoded into plain Go values (maps, slices,
// json.Number, strings) and encoded again by encodeJSON. Every piece of JSON
// that reaches SQLite goes through that one encoder, which is what makes
// text comparison in SQL (doc -> '$.email' = json(?)) reliable.

// encodeDocument turns a bson-tagged struct (or bson.D / map) into its stored
// form. It returns the document's _id as 24 hex chars, generating one if the
// document has none.
func encodeDocument(doc any) (string, map[string]any, error) {
	ext, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return "", nil, fmt.Errorf("encoding document: %w", err)
	}

	var fields map[string]any
	if err := decodeJSON(ext, &fields); err != nil {
		return "", nil, fmt.Errorf("decoding document: %w", err)
	}

	raw, ok := fields["_id"]
	if !ok {
		id := bson.NewObjectID()
		fields["_id"] = map[string]any{"$oid": id.Hex()}
		return id.Hex(), fields, nil
	}

	id, err := objectIDHex(raw)
	if err != nil {
		return "", nil, err
	}
	return id, fields, nil
}

// decodeDocument parses a stored document.
func decodeDocument(text []byte) (map[string]any, error) {
	var fields map[string]any
	if err := decodeJSON(text, &fields); err != nil {
		return nil, fmt.Errorf("decoding stored document: %w", err)
	}
	return fields, nil
}

// unmarshalDocument fills out (a pointer to a bson-tagged struct) from stored JSON.
func unmarshalDocument(text []byte, out any) error {
	if err := bson.UnmarshalExtJSON(text, false, out); err != nil {
		return fmt.Errorf("decoding stored document: %w", err)
	}
	return nil
}

// encodeValue converts one Go value (ObjectID, time.Time, string, struct...)
// into the plain value it has inside a stored document.
func encodeValue(v any) (any, error) {
	ext, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}

	var wrapper map[string]any
	if err := decodeJSON(ext, &wrapper); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return wrapper["v"], nil
}

// objectIDHex extracts the hex string of an encoded {"$oid": "..."} value.
func objectIDHex(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", errors.New("_id must be an ObjectID")
	}
	hex, ok := m["$oid"].(string)
	if !ok || len(m) != 1 {
		return "", errors.New("_id must be an ObjectID")
	}
	return hex, nil
}

// encodeJSON is the single JSON encoder for everything written to SQLite.
// HTML escaping is off: "<" must stay "<" on both sides of a comparison.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// decodeJSON keeps numbers as json.Number so integers survive a round trip
// without turning into float64.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
