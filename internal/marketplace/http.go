package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

const (
	maxResponseBytes = 4 << 20
	maxSnippetBytes  = 200
)

// Do performs req and reads the body. Only failures to reach the platform or
// read its answer are returned as errors; status codes are left to the caller.
func Do(client *http.Client, req *http.Request, platform domain.Platform, op string) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, transportError(platform, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &errors.ErrTransport{Platform: platform, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return resp.StatusCode, body, nil
}

// transportError wraps a client failure. A *url.Error repeats the request URL,
// and query strings carry app secrets and access tokens, so only the scheme,
// host and path are kept.
func transportError(platform domain.Platform, op string, err error) *errors.ErrTransport {
	if uerr, ok := err.(*url.Error); ok {
		err = &url.Error{Op: uerr.Op, URL: stripQuery(uerr.URL), Err: uerr.Err}
	}
	return &errors.ErrTransport{Platform: platform, Op: op, Err: err}
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

// IsSuccess reports a 2xx status
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// HMACSHA256Hex signs message with key and returns lowercase hex
func HMACSHA256Hex(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Scrub replaces every non-empty secret in msg
func Scrub(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, "[redacted]")
		}
	}
	return msg
}

// statusError builds a provider error for a non-2xx answer that carried no
// parseable error payload
func statusError(platform domain.Platform, op string, status int, body []byte, secrets []string) *errors.ErrProvider {
	msg := http.StatusText(status)
	// scrub before cutting so a secret across the cut is still caught
	if snippet := Scrub(strings.TrimSpace(string(body)), secrets...); snippet != "" {
		msg += ": " + truncateRunes(snippet, maxSnippetBytes)
	}
	return &errors.ErrProvider{
		Platform:   platform,
		Op:         op,
		Message:    msg,
		StatusCode: status,
	}
}

// truncateRunes cuts s to at most n bytes without splitting a rune
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
