package profile

import "errors"

var (
	ErrNotFound  = errors.New("profile_not_found")
	ErrInvalidID = errors.New("invalid_profile_id")
)
