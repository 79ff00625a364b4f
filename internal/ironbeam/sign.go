package ironbeam

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Auth header names.
const (
	HeaderKey       = "IB-API-KEY"
	HeaderTimestamp = "IB-API-TIMESTAMP"
	HeaderSignature = "IB-API-SIGNATURE"
)

// Sign returns hex(HMAC-SHA256(secret, VERB|path|ts|body)).
func Sign(secret, verb, path, ts, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = io.WriteString(mac, strings.ToUpper(verb)+"|"+path+"|"+ts+"|"+body)
	return hex.EncodeToString(mac.Sum(nil))
}

// signHeaders stamps the auth headers on req. path must include any query
// string exactly as sent.
func signHeaders(h http.Header, apiKey, secret, verb, path, body string, now time.Time) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	h.Set(HeaderKey, apiKey)
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderSignature, Sign(secret, verb, path, ts, body))
	h.Set("Content-Type", "application/json")
}
