package auth

import (
	"net/http"
	"strings"
	"unicode"
)

const (
	bearerScheme = "bearer"
	userPrefix   = "user_"
)

// ExtractBearerToken returns the token carried by an Authorization header value
// of the form "Bearer <token>". The scheme is matched case-insensitively and the
// value must split into exactly two whitespace-separated fields; anything else
// yields ok == false.
func ExtractBearerToken(header string) (token string, ok bool) {
	parts := strings.FieldsFunc(header, isSpace)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], bearerScheme) {
		return "", false
	}
	token = strings.TrimFunc(parts[1], isSpace)
	if token == "" {
		return "", false
	}
	return token, true
}

// isSpace extends unicode.IsSpace with the ASCII separators U+001C..U+001F,
// which some clients treat as whitespace.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// IsValidToken reports whether token follows the demo naming convention.
// The empty string stands for a missing token and is never valid.
func IsValidToken(token string) bool {
	if token == "" {
		return false
	}
	return strings.HasPrefix(token, userPrefix)
}

// Authorized combines extraction and validation of a raw credential.
func Authorized(credential string) bool {
	token, ok := ExtractBearerToken(credential)
	if !ok {
		return false
	}
	return IsValidToken(token)
}

// Credential reads the raw credential for r. The Authorization header wins;
// the "authorization" query parameter is accepted when the header is absent.
func Credential(r *http.Request) string {
	if r == nil {
		return ""
	}
	if values, ok := r.Header["Authorization"]; ok && len(values) > 0 {
		return values[0]
	}
	return r.URL.Query().Get("authorization")
}
