/**
 * @description
 * Custom middleware for the onboarding router: structured access logging, the
 * per-identity rate limiter for mutating onboarding routes and Prime Trust webhook
 * signature verification.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5/middleware: response writer wrapping and request ids.
 * - go.uber.org/zap: access and rejection logs.
 */
package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SignatureHeader carries the base64 HMAC-SHA256 of a Prime Trust webhook body.
const SignatureHeader = "X-Signature"

// RequestLogger logs one line per request with its outcome and latency.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// metadata only, request bodies carry KYC data
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("dur", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

// readBody buffers the request body and puts an identical reader back on r.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limitBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// requestIdentity finds the caller's identity in the query string or the JSON body.
// Only a failure to read the body is returned; an unparseable body gives "".
func requestIdentity(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := r.URL.Query().Get("identity"); id != "" {
		return id, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	body, err := readBody(w, r)
	if err != nil {
		return "", err
	}
	var req struct {
		Identity string `json:"identity"`
	}
	if json.Unmarshal(body, &req) != nil {
		return "", nil
	}
	return req.Identity, nil
}

// RateLimitByIdentity rejects requests over the limit with 429. Limiter failures are
// logged and the request is let through.
func RateLimitByIdentity(limiter RateLimiter, scope string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := requestIdentity(w, r)
			if err != nil {
				writeBodyError(w, err, "Could not read request body")
				return
			}
			allowed, retryAfter, err := limiter.Allow(r.Context(), scope, identity)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validSignature accepts the digest in base64 or hex.
func validSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	signature = strings.TrimSpace(signature)
	if got, err := base64.StdEncoding.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	if got, err := hex.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	return false
}

// VerifySignature rejects webhook calls whose body does not match SignatureHeader.
// An empty secret disables the check.
func VerifySignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			body, err := readBody(w, r)
			if err != nil {
				writeBodyError(w, err, "Could not read request body")
				return
			}
			if !validSignature(secret, body, r.Header.Get(SignatureHeader)) {
				writeError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
