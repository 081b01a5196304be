package server

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/hpke"
	"github.com/watzon/syncstore/internal/metrics"
	"github.com/watzon/syncstore/internal/user"
)

// Transport headers of the HPKE wrapper.
const (
	// HeaderEnc carries the base64 encapsulated key: on requests for the
	// request ciphertext, on responses for the response ciphertext.
	HeaderEnc = "X-Enc"
	// HeaderSessionPubKey is the client's ephemeral public key for
	// response encryption on this round-trip.
	HeaderSessionPubKey = "X-Session-PubKey"
	// HeaderPath echoes the request path bound into the AEAD as AAD.
	HeaderPath = "X-Path"
)

// HPKEMiddleware decrypts request bodies marked with X-Enc using the
// authenticated user's stored secret key, and encrypts responses to the
// caller-supplied session key when one was offered. The request path is the
// AAD in both directions, so a ciphertext cannot be replayed against a
// different endpoint.
//
// Runs after the auth middleware: key material is looked up by the
// authenticated user id.
func HPKEMiddleware(users *user.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encHeader := r.Header.Get(HeaderEnc)
			if encHeader == "" {
				// Plain JSON in, plain JSON out.
				next.ServeHTTP(w, r)
				return
			}

			encappedKey, err := base64.StdEncoding.DecodeString(encHeader)
			if err != nil {
				writeUnauthorized(w, "malformed X-Enc header")
				return
			}

			userID := auth.UserID(r.Context())
			if userID == "" {
				writeUnauthorized(w, "encrypted request requires authentication")
				return
			}

			secretKey, _, err := users.KeyMaterial(r.Context(), userID)
			if err != nil {
				writeUnauthorized(w, "no key material for user")
				return
			}

			ciphertext, err := io.ReadAll(r.Body)
			if err != nil {
				writeUnauthorized(w, "reading request body failed")
				return
			}
			r.Body.Close()

			aad := []byte(r.URL.Path)
			plaintext, err := hpke.Decrypt(ciphertext, encappedKey, secretKey, aad)
			metrics.RecordHPKE("request", err)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("HPKE request decryption failed")
				writeUnauthorized(w, "decryption failed")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(plaintext))
			r.ContentLength = int64(len(plaintext))

			sessionHeader := r.Header.Get(HeaderSessionPubKey)
			if sessionHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			sessionKey, err := base64.StdEncoding.DecodeString(sessionHeader)
			if err != nil {
				writeUnauthorized(w, "malformed X-Session-PubKey header")
				return
			}

			session := &encSession{sessionPubKey: sessionKey, path: r.URL.Path}
			ew := &encryptingWriter{inner: w, status: http.StatusOK}
			next.ServeHTTP(ew, r)
			ew.finalize(session)
		})
	}
}

// encSession is the response-encryption state captured from an encrypted
// request: the ephemeral public key the client chose for this round-trip
// and the request path used as AAD.
type encSession struct {
	sessionPubKey []byte
	path          string
}

// encryptingWriter buffers the handler's output so it can be sealed to the
// session key after the handler returns.
type encryptingWriter struct {
	inner  http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *encryptingWriter) Header() http.Header {
	return w.inner.Header()
}

func (w *encryptingWriter) WriteHeader(status int) {
	w.status = status
}

func (w *encryptingWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *encryptingWriter) finalize(session *encSession) {
	if w.buf.Len() == 0 {
		w.inner.WriteHeader(w.status)
		return
	}

	aad := []byte(session.path)
	encappedKey, ciphertext, err := hpke.Encrypt(w.buf.Bytes(), session.sessionPubKey, aad)
	metrics.RecordHPKE("response", err)
	if err != nil {
		log.Error().Err(err).Str("path", session.path).Msg("HPKE response encryption failed")
		w.inner.Header().Set("Content-Type", "application/json")
		w.inner.WriteHeader(http.StatusInternalServerError)
		_, _ = w.inner.Write([]byte(`{"error":"response encryption failed"}`))
		return
	}

	h := w.inner.Header()
	h.Set(HeaderEnc, base64.StdEncoding.EncodeToString(encappedKey))
	h.Set(HeaderPath, session.path)
	h.Set("Content-Type", "application/octet-stream")
	h.Del("Content-Length")
	w.inner.WriteHeader(w.status)
	_, _ = w.inner.Write(ciphertext)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized: ` + msg + `"}`))
}
