package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/rafflehq/rafflehq-backend/api/responses"
	pkgerrors "github.com/rafflehq/rafflehq-backend/pkg/errors"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
)

const defaultWebhookDedupTTL = 24 * time.Hour

// dedupStore is the slice of the redis client the guard needs.
type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// WebhookDedup drops byte-identical webhook deliveries inside the TTL
// window. First writer wins via SETNX; replays are acknowledged with
// 200 so the provider stops retrying. The body hash only filters exact
// duplicates; the handler still checks transaction status for replays
// that differ in formatting.
func WebhookDedup(store dedupStore, logg *logger.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultWebhookDedupTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			key := store.IdempotencyKey("webhook", base64.RawURLEncoding.EncodeToString(sum[:]))

			first, err := store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl)
			if err != nil {
				// Redis trouble must not drop payment signals; let the
				// handler's status check carry the dedup burden.
				if logg != nil {
					logg.Warn(ctx, "webhook dedup store unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !first {
				if logg != nil {
					logg.Info(ctx, "duplicate webhook delivery dropped")
				}
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
