package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/circulation-backend/api/responses"
	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/circulation-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	// BorrowIdempotencyTTL covers a same-day client retry of a borrow.
	BorrowIdempotencyTTL = 24 * time.Hour
	// ReturnIdempotencyTTL outlives the loan period's retry window.
	ReturnIdempotencyTTL = 7 * 24 * time.Hour

	inFlightTTL       = 30 * time.Second
	maxIdempotencyKey = 255
	maxReplayBody     = 1 << 20
)

type recordState string

const (
	statePending  recordState = "pending"
	stateComplete recordState = "complete"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        string      `json:"body,omitempty"`
}

// Idempotency makes a POST safe to retry under the same Idempotency-Key.
// The first request reserves the key, later ones either replay the stored
// answer or get 409 while the first is still running. 5xx answers release
// the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if idemKey == "" || len(idemKey) > maxIdempotencyKey {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"max_length": maxIdempotencyKey}))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r, body)
			key := store.IdempotencyKey(MemberIDFromContext(ctx).String(), idemKey)

			pending, _ := json.Marshal(idempotencyRecord{State: statePending, RequestHash: hash})
			reserved, err := store.SetNX(ctx, key, string(pending), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayStored(w, r, store, logg, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusOrOK()
			if status >= http.StatusInternalServerError || capture.body.Len() > maxReplayBody {
				if delErr := store.Del(ctx, key); delErr != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", delErr)
				}
				return
			}
			done, _ := json.Marshal(idempotencyRecord{
				State:       stateComplete,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			})
			if setErr := store.Set(ctx, key, string(done), ttl); setErr != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", setErr)
			}
		})
	}
}

func replayStored(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, logg *logger.Logger, key, hash string) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the client may simply retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request"))
		return
	}
	if record.State != stateComplete {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request still in progress"))
		return
	}
	stored, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response"))
		return
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(stored)
}

// requestHash binds the key to the exact route and body it was first used with.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
