package utils

import (
	"encoding/json"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// Unmarshal JSON to generic struct
func UnmarshalFromJSON[T any](data []byte, output *T) error {
	return json.Unmarshal(data, output)
}

// ShortJSON renders obj as JSON truncated to maxLen characters.
// Used for request/response logging where full payloads would flood the log.
func ShortJSON(obj any, maxLen int) string {
	b, err := json.Marshal(obj)
	if err != nil {
		return "<unmarshalable>"
	}
	return Truncate(string(b), maxLen)
}

func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + " ..."
}
