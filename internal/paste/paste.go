package paste

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"burnbin/internal/id"
	"burnbin/internal/storage"
)

// ValidationError marks client-caused input failures. It identifies the
// offending field in its message and never reaches the store.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// CreateInput is the untyped create request body. Fields hold whatever the
// JSON decoder produced; Validate is the only place that inspects them.
type CreateInput struct {
	Content    any `json:"content"`
	TTLSeconds any `json:"ttl_seconds"`
	MaxViews   any `json:"max_views"`
}

// Validated is the normalized create request. Nil TTLSeconds means no expiry,
// nil MaxViews means unlimited views.
type Validated struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

// Response is the consume projection returned to callers.
type Response struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

// ValidateCreateInput checks the untrusted create request. Content must be a
// non-empty string (emptiness is judged on the trimmed value, the original
// string is what gets stored); ttl_seconds and max_views are optional
// positive integers.
func ValidateCreateInput(input CreateInput) (*Validated, error) {
	content, ok := input.Content.(string)
	if !ok {
		return nil, validationErrorf("content must be a string")
	}
	if !hasNonSpace(content) {
		return nil, validationErrorf("content must be non-empty")
	}

	ttl, err := toPositiveIntOrNil(input.TTLSeconds, "ttl_seconds")
	if err != nil {
		return nil, err
	}
	views, err := toPositiveIntOrNil(input.MaxViews, "max_views")
	if err != nil {
		return nil, err
	}

	return &Validated{Content: content, TTLSeconds: ttl, MaxViews: views}, nil
}

func hasNonSpace(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\v', '\f', '\r':
		default:
			return true
		}
	}
	return false
}

// toPositiveIntOrNil normalizes an optional numeric field. Absent (nil) maps
// to nil; anything present must be a finite integer >= 1. Both json.Number
// and float64 decodings are accepted.
func toPositiveIntOrNil(v any, fieldName string) (*int64, error) {
	if v == nil {
		return nil, nil
	}

	var n int64
	switch num := v.(type) {
	case json.Number:
		f, err := num.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, validationErrorf("%s must be a number", fieldName)
		}
		if f != math.Trunc(f) {
			return nil, validationErrorf("%s must be an integer", fieldName)
		}
		n = int64(f)
	case float64:
		if math.IsNaN(num) || math.IsInf(num, 0) {
			return nil, validationErrorf("%s must be a number", fieldName)
		}
		if num != math.Trunc(num) {
			return nil, validationErrorf("%s must be an integer", fieldName)
		}
		n = int64(num)
	default:
		return nil, validationErrorf("%s must be a number", fieldName)
	}

	if n < 1 {
		return nil, validationErrorf("%s must be >= 1", fieldName)
	}
	return &n, nil
}

// CreatePaste mints a fresh id, derives the absolute expiry from the TTL and
// persists the record. It returns the new id.
func CreatePaste(ctx context.Context, store storage.Store, gen *id.Generator, v *Validated, nowMS int64) (string, error) {
	pasteID, err := gen.Generate(ctx)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	rec := &storage.Record{
		ID:          pasteID,
		Content:     v.Content,
		CreatedAtMS: nowMS,
	}
	if v.TTLSeconds != nil {
		expiresAt := nowMS + *v.TTLSeconds*1000
		rec.ExpiresAtMS = &expiresAt
	}
	if v.MaxViews != nil {
		views := *v.MaxViews
		rec.RemainingViews = &views
	}

	if err := store.Create(ctx, rec); err != nil {
		return "", err
	}
	return pasteID, nil
}

// ConsumePaste runs one atomic consume and shapes the result for callers.
// Not-found (including expired and exhausted) surfaces as
// storage.ErrNotFound.
func ConsumePaste(ctx context.Context, store storage.Store, pasteID string, nowMS int64) (*Response, error) {
	if pasteID == "" {
		return nil, storage.ErrNotFound
	}

	rec, err := store.ConsumeByID(ctx, pasteID, nowMS)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Content:        rec.Content,
		RemainingViews: rec.RemainingViews,
	}
	if rec.ExpiresAtMS != nil {
		iso := FormatMS(*rec.ExpiresAtMS)
		resp.ExpiresAt = &iso
	}
	return resp, nil
}

// FormatMS renders an epoch-millisecond timestamp as an ISO-8601 UTC string
// with millisecond precision.
func FormatMS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
