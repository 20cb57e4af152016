// Package upstream holds helpers shared by every outbound JSON call.
package upstream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 8 << 20

// Body is an upstream response body read as raw text. Parsed reports
// whether the text is valid JSON; callers decide what to do when it is not.
type Body struct {
	Raw    string
	Parsed bool
}

// ReadBody reads the response body as text first and then checks it for
// valid JSON. It only fails when the body cannot be read at all.
func ReadBody(resp *http.Response) (Body, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Body{}, fmt.Errorf("read upstream body: %w", err)
	}
	return ParseBody(data), nil
}

// ParseBody wraps already-read bytes.
func ParseBody(data []byte) Body {
	return Body{Raw: string(data), Parsed: gjson.ValidBytes(data)}
}

// String returns the string at a gjson path such as
// "choices.0.message.content". Missing levels, non-string values, empty
// strings and unparsed bodies all report false.
func (b Body) String(path string) (string, bool) {
	if !b.Parsed {
		return "", false
	}
	res := gjson.Get(b.Raw, path)
	if res.Type != gjson.String || res.Str == "" {
		return "", false
	}
	return res.Str, true
}

// Array returns the elements at path, or nil when absent or not an array.
func (b Body) Array(path string) []gjson.Result {
	if !b.Parsed {
		return nil
	}
	res := gjson.Get(b.Raw, path)
	if !res.IsArray() {
		return nil
	}
	return res.Array()
}

// Snippet returns at most n bytes of the raw body for logging.
func (b Body) Snippet(n int) string {
	if len(b.Raw) <= n {
		return b.Raw
	}
	return b.Raw[:n]
}
