package domain

import (
	"errors"
	"fmt"
	"time"
)

type Photography struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	PublicID  string    `json:"public_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// SortOrder is the creation-time ordering used when listing photographies.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder maps the empty string to SortAsc and rejects anything other
// than "asc" or "desc".
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", SortAsc:
		return SortAsc, nil
	case SortDesc:
		return SortDesc, nil
	default:
		return "", fmt.Errorf("invalid sort order %q", s)
	}
}

var (
	ErrNotFound    = errors.New("photography not found")
	ErrUpload      = errors.New("media upload failed")
	ErrPersistence = errors.New("persistence failed")
	ErrMediaDelete = errors.New("media deletion failed")

	// ErrCodeTaken is returned by stores when an insert violates the unique
	// constraint on code. It is also an ErrPersistence.
	ErrCodeTaken = fmt.Errorf("%w: code already taken", ErrPersistence)

	// ErrCodeSpaceExhausted means no free code exists up to the maximum length.
	ErrCodeSpaceExhausted = fmt.Errorf("%w: code space exhausted", ErrPersistence)
)
