package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrRejected           = errors.New("order rejected")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrWSDisconnect       = errors.New("websocket disconnected")
)
