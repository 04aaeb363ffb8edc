package preprocess

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPayload  = errors.New("image payload is empty")
	ErrInvalidBase64 = errors.New("image payload is not valid base64")
)

// StripDataURI drops everything up to and including the first comma, so
// "data:image/png;base64,AAAA" and "AAAA" yield the same string.
func StripDataURI(payload string) string {
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		return payload[idx+1:]
	}
	return payload
}

// DecodePayload strips an optional data-URI prefix and base64-decodes the rest.
// Whitespace (line-wrapped base64) is ignored and missing padding is tolerated.
func DecodePayload(payload string) ([]byte, error) {
	encoded := strings.Join(strings.Fields(StripDataURI(payload)), "")
	if encoded == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil && len(encoded)%4 != 0 {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}
