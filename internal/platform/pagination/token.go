package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeToken serialises cursor into a base64 URL-safe page token.
func EncodeToken[T any](cursor T) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken. An empty token yields the
// zero cursor and ok=false.
func DecodeToken[T any](token string) (cursor T, ok bool, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return cursor, false, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor, false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return cursor, false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, true, nil
}
