package core

import "errors"

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyName       = errors.New("empty name")
	ErrNotFound        = errors.New("not found")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidCategory = errors.New("invalid account category")
	ErrNotManual       = errors.New("account is not a manual account")
	ErrInvalidDebtType = errors.New("invalid debt type")
	ErrInvalidEntity   = errors.New("invalid entity type")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidPlan     = errors.New("invalid investment plan")
)
