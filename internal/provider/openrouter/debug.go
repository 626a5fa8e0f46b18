package openrouter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const maxLoggedPayload = 100

func (p *Provider) logRequest(method, url string, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	fmt.Fprintln(p.logOut, "--- REQUEST ---")
	fmt.Fprintf(p.logOut, "%s %s\n", method, url)
	p.logHeaders(headers)
	p.logBody(body)
	fmt.Fprintln(p.logOut, "---------------")
}

func (p *Provider) logResponse(statusCode int, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	fmt.Fprintln(p.logOut, "--- RESPONSE ---")
	fmt.Fprintf(p.logOut, "Status: %d\n", statusCode)
	p.logHeaders(headers)
	p.logBody(body)
	fmt.Fprintln(p.logOut, "----------------")
}

func (p *Provider) logHeaders(headers http.Header) {
	fmt.Fprintln(p.logOut, "Headers:")
	for key, values := range headers {
		for _, value := range values {
			if strings.EqualFold(key, "authorization") {
				value = "[REDACTED]"
			}
			fmt.Fprintf(p.logOut, "  %s: %s\n", key, value)
		}
	}
}

func (p *Provider) logBody(body []byte) {
	if len(body) == 0 {
		return
	}
	fmt.Fprintln(p.logOut, "Body:")
	truncated := truncatePayloads(body)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, truncated, "  ", "  "); err == nil {
		fmt.Fprintf(p.logOut, "  %s\n", pretty.String())
	} else {
		fmt.Fprintf(p.logOut, "  %s\n", string(truncated))
	}
}

// truncatePayloads shortens embedded image data so dumps stay readable.
func truncatePayloads(body []byte) []byte {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	data = truncateValue("", data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateValue(key string, value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > maxLoggedPayload && (strings.HasPrefix(v, "data:") || key == "b64_json" || key == "data") {
			return v[:maxLoggedPayload] + "... [truncated]"
		}
		return v
	case map[string]any:
		for k, item := range v {
			v[k] = truncateValue(k, item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = truncateValue(key, item)
		}
		return v
	default:
		return v
	}
}
