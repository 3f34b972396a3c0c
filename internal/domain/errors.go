package domain

import "errors"

var (
	ErrInvalidGroupKind = errors.New("invalid group kind")
	ErrInvalidGroupKey  = errors.New("invalid group key")
	ErrInvalidRole      = errors.New("invalid project role")
)
