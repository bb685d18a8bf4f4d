package mailpro

import (
	"bytes"
	"encoding/json"
)

// Shape names which part of a response body carried the payload.
type Shape int

const (
	// ShapeEmpty: the body was empty; there is no payload.
	ShapeEmpty Shape = iota
	// ShapeEmptyArray: the body was the literal "[]".
	ShapeEmptyArray
	// ShapeRecords: {"data": {"records": ...}}
	ShapeRecords
	// ShapeRecord: {"data": {"record": ...}}
	ShapeRecord
	// ShapeData: {"data": ...} without records/record.
	ShapeData
	// ShapeBody: no recognised wrapper; the whole body is the payload.
	ShapeBody
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeEmptyArray:
		return "empty-array"
	case ShapeRecords:
		return "data.records"
	case ShapeRecord:
		return "data.record"
	case ShapeData:
		return "data"
	case ShapeBody:
		return "body"
	default:
		return "unknown"
	}
}

// Envelope is a decoded response body.
type Envelope struct {
	// Status is the envelope "status" field; nil when absent.
	Status  *string
	Shape   Shape
	Payload json.RawMessage
}

// Failed reports whether the envelope carries a status other than "success".
func (e Envelope) Failed() bool {
	return e.Status != nil && *e.Status != "success"
}

// DecodeEnvelope tries the known response shapes in order: data.records,
// data.record, data, then the whole body. Bodies that are not JSON yield a
// *ParseError, except the literal "[]" which is an empty result.
func DecodeEnvelope(body []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Envelope{Shape: ShapeEmpty}, nil
	}
	if bytes.Equal(trimmed, []byte("[]")) {
		return Envelope{Shape: ShapeEmptyArray, Payload: json.RawMessage("[]")}, nil
	}
	if !json.Valid(trimmed) {
		return Envelope{}, &ParseError{Raw: string(body)}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		// valid JSON that is not an object (array, scalar)
		return Envelope{Shape: ShapeBody, Payload: json.RawMessage(trimmed)}, nil
	}

	env := Envelope{}
	if raw, ok := top["status"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		env.Status = &s
	}

	data, ok := top["data"]
	if !ok || isNull(data) {
		env.Shape = ShapeBody
		env.Payload = json.RawMessage(trimmed)
		return env, nil
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(data, &inner); err == nil {
		if recs, ok := inner["records"]; ok && !isNull(recs) {
			env.Shape = ShapeRecords
			env.Payload = recs
			return env, nil
		}
		if rec, ok := inner["record"]; ok && !isNull(rec) {
			env.Shape = ShapeRecord
			env.Payload = rec
			return env, nil
		}
	}

	env.Shape = ShapeData
	env.Payload = data
	return env, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// isEmptyPayload reports whether a payload carries nothing usable.
func isEmptyPayload(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("[]"))
}
