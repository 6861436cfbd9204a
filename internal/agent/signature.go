package agent

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

const (
	HeaderTimestamp = "X-Fleet-Timestamp"
	HeaderSignature = "X-Fleet-Signature"
)

// CanonicalBody serialises a request body the way both sides sign it: compact JSON,
// no HTML escaping, non-ASCII escaped as \uXXXX. Absent bodies and zero values (null, "",
// 0, false, {} and []) sign as no bytes.
func CanonicalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.([]byte); ok {
		if len(raw) == 0 {
			return nil, nil
		}
		body = json.RawMessage(raw)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	switch string(out) {
	case "", "null", "{}", "[]", `""`, "0", "false":
		return nil, nil
	}
	return escapeNonASCII(out), nil
}

func escapeNonASCII(b []byte) []byte {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return b
	}
	var out bytes.Buffer
	out.Grow(len(b) + 16)
	for _, r := range string(b) {
		switch {
		case r < 0x80:
			out.WriteByte(byte(r))
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.Bytes()
}

// Sign computes base64(HMAC-SHA256(secret, METHOD || path || body || timestamp)).
func Sign(secret string, timestamp int64, method, path string, body []byte) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignatureHeaders returns the timestamp header, plus the signature header when a secret is set.
func SignatureHeaders(secret, method, path string, body []byte, now time.Time) http.Header {
	ts := now.Unix()
	h := http.Header{}
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	if secret == "" {
		return h
	}
	h.Set(HeaderSignature, Sign(secret, ts, method, path, body))
	return h
}

// SignatureError is returned by Verify when a request must be rejected.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "signature rejected: " + e.Reason
}

func NewSignatureError(format string, args ...any) *SignatureError {
	return &SignatureError{Reason: fmt.Sprintf(format, args...)}
}

// Verify is the agent-side counterpart of SignatureHeaders. The timestamp must lie within
// tolerance of now; when secret is empty only the timestamp is checked.
func Verify(secret string, tolerance time.Duration, h http.Header, method, path string, body []byte, now time.Time) error {
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return NewSignatureError("missing or malformed timestamp")
	}
	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > tolerance {
		return NewSignatureError("signature expired (age=%ds)", now.Unix()-ts)
	}
	if secret == "" {
		return nil
	}
	expected := Sign(secret, ts, method, path, body)
	if !hmac.Equal([]byte(expected), []byte(h.Get(HeaderSignature))) {
		return NewSignatureError("invalid signature for %s %s", strings.ToUpper(method), path)
	}
	return nil
}
