package response

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Structured payload classifications.
const (
	DataTypeFlights = "flights"
	DataTypeHotels  = "hotels"
	DataTypeList    = "list"
)

// Structured is a listing payload returned by a tool, shaped as
// {"data": [...]} with optional metadata alongside.
type Structured struct {
	DataType string          `json:"data_type"`
	Data     json.RawMessage `json:"data"`
}

// DetectStructured inspects tool output for a structured listing. Content
// qualifies when it is a JSON object whose "data" field is a non-empty array
// of objects. The classification comes from an explicit "data_type" field
// when present, otherwise from the keys of the first item.
func DetectStructured(content string) (*Structured, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var envelope struct {
		DataType string            `json:"data_type"`
		Data     []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, false
	}
	if len(envelope.Data) == 0 {
		return nil, false
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Data[0], &first); err != nil {
		return nil, false
	}

	data, err := json.Marshal(envelope.Data)
	if err != nil {
		return nil, false
	}

	dataType := envelope.DataType
	if dataType == "" {
		dataType = Classify(first)
	}

	return &Structured{DataType: dataType, Data: data}, true
}

// Classify names the kind of listing an item belongs to.
func Classify(item map[string]json.RawMessage) string {
	if _, ok := item["flightNumber"]; ok {
		return DataTypeFlights
	}
	if _, ok := item["pricePerNight"]; ok {
		return DataTypeHotels
	}
	return DataTypeList
}

// IsJSONArray reports whether raw holds a JSON array.
func IsJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
