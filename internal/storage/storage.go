package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a paste does not exist, has expired, or has no
// views left. The three cases are deliberately indistinguishable.
var ErrNotFound = errors.New("paste not found")

// ErrUnavailable indicates the backing engine could not be reached or is
// misconfigured. It is never returned for a missing paste.
var ErrUnavailable = errors.New("storage unavailable")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Record is the persisted paste entry.
//
// ExpiresAtMS and RemainingViews are nil when unset: a nil expiry means the
// paste never expires by time, a nil view count means unlimited views.
type Record struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	CreatedAtMS    int64  `json:"created_at_ms"`
	ExpiresAtMS    *int64 `json:"expires_at_ms"`
	RemainingViews *int64 `json:"remaining_views"`
}

// Expired reports whether the record is past its expiry at nowMS.
func (r *Record) Expired(nowMS int64) bool {
	return r.ExpiresAtMS != nil && nowMS >= *r.ExpiresAtMS
}

// ViewLimited reports whether the record carries a view limit.
func (r *Record) ViewLimited() bool {
	return r.RemainingViews != nil
}

// Store defines the storage backend contract.
//
// ConsumeByID is the load-bearing operation: it atomically applies the expiry
// policy while reading. It checks expiry first (expired records are deleted
// and reported not found), then the view limit (exhausted records are deleted
// and reported not found, otherwise the count is decremented and persisted),
// and returns the record reflecting the post-decrement count.
// Unlimited-view records come back unmodified. The read-check-mutate sequence
// is serialized per id: two concurrent consumers of a one-view paste cannot
// both receive it.
//
// DeleteExpired is storage hygiene only; consume deletes dead records eagerly
// and never depends on the sweep.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	ConsumeByID(ctx context.Context, id string, nowMS int64) (*Record, error)
	HealthCheck(ctx context.Context) error
	DeleteExpired(ctx context.Context, nowMS int64) (int, error)
	Close() error
}
