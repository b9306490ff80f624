package vpnconfig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// decodePermissiveBase64 decodes a base64 blob after restoring the padding
// that vmess/shadowsocks URIs routinely omit (Design Notes §9: "require
// permissive padding (+= '=' * (-len % 4))"). Decode failure is treated as a
// ParseError by the caller — this function just reports ok=false.
func decodePermissiveBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	// vmess/ss links commonly use URL-safe or standard alphabets interchangeably.
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, true
	}
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return decoded, true
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return decoded, true
	}
	return nil, false
}

// jsonStringField extracts a string field from a JSON object blob. Returns
// "" if the blob isn't a JSON object or the field is absent/non-string.
func jsonStringField(blob []byte, field string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(blob, &m); err != nil {
		return ""
	}
	if v, ok := m[field].(string); ok {
		return v
	}
	return ""
}

// jsonNumberField extracts a numeric field from a JSON object blob, rendered
// as a string (vmess "port" is sometimes a JSON number, sometimes a string).
func jsonNumberField(blob []byte, field string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(blob, &m); err != nil {
		return ""
	}
	switch v := m[field].(type) {
	case float64:
		return fmt.Sprintf("%d", int64(v))
	case string:
		return v
	default:
		return ""
	}
}
