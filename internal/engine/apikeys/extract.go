package apikeys

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// FromRequest returns the credential presented with a request, checking
// locations in precedence order: Authorization bearer header, X-API-Key
// header, api_key query parameter, POST form field, JSON body field. The
// first non-empty match wins. body is the request body already read by the
// caller (the lookup handler needs it again for the email field).
func FromRequest(r *http.Request, body []byte) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}

	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}

	if key := strings.TrimSpace(r.URL.Query().Get("api_key")); key != "" {
		return key
	}

	if r.Method == http.MethodPost && len(body) > 0 {
		contentType := r.Header.Get("Content-Type")

		if strings.Contains(contentType, "application/x-www-form-urlencoded") {
			if values, err := url.ParseQuery(string(body)); err == nil {
				if key := strings.TrimSpace(values.Get("api_key")); key != "" {
					return key
				}
			}
		}

		if strings.Contains(contentType, "application/json") {
			var payload struct {
				APIKey string `json:"api_key"`
			}
			if err := json.Unmarshal(body, &payload); err == nil {
				return strings.TrimSpace(payload.APIKey)
			}
		}
	}

	return ""
}
