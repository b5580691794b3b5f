package service

import "errors"

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidFilter      = errors.New("invalid order filter")
	ErrInvalidUpdate      = errors.New("invalid status update")
	ErrOrderNotFound      = errors.New("order not found")
	ErrConflictingStatus  = errors.New("order requested with conflicting statuses")
	ErrPublishAfterCommit = errors.New("orders committed but events not published")
)
