// Package validation holds request-parameter checks shared by the HTTP handlers.
package validation

import (
	"errors"
	"strconv"

	"github.com/volunteer-hub/volunteer-hub/internal/db/models"
)

// Page size bounds for list endpoints
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrInvalidLimit  = errors.New("limit must be a positive integer")
	ErrInvalidOffset = errors.New("offset must be a non-negative integer")
	ErrInvalidStatus = errors.New("status must be submitted, approved or rejected")
)

// Pagination parses raw limit and offset query values. Empty values take the
// defaults and limits above MaxPageSize are clamped.
func Pagination(rawLimit, rawOffset string) (limit, offset int, err error) {
	limit = DefaultPageSize
	if rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n < 1 {
			return 0, 0, ErrInvalidLimit
		}
		limit = min(n, MaxPageSize)
	}
	if rawOffset != "" {
		n, err := strconv.Atoi(rawOffset)
		if err != nil || n < 0 {
			return 0, 0, ErrInvalidOffset
		}
		offset = n
	}
	return limit, offset, nil
}

// ApplicationStatus checks a status filter; empty means no filter.
func ApplicationStatus(status string) error {
	switch models.ApplicationStatus(status) {
	case "", models.ApplicationStatusSubmitted, models.ApplicationStatusApproved, models.ApplicationStatusRejected:
		return nil
	}
	return ErrInvalidStatus
}
