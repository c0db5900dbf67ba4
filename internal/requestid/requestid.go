// Package requestid carries the correlation id of an API call through its
// context, so log lines written while enqueueing a job can be tied back to
// the request that asked for it.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// MaxLen bounds a caller-supplied id. Longer values are replaced.
const MaxLen = 128

type ctxKey struct{}

func New() string {
	return uuid.NewString()
}

// Sanitize returns id when it is safe to echo into headers and logs, and a
// fresh id otherwise. Only letters, digits and ._:- are accepted.
func Sanitize(id string) string {
	if id == "" || len(id) > MaxLen {
		return New()
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == ':', c == '-':
		default:
			return New()
		}
	}
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns "" when no id was attached.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
