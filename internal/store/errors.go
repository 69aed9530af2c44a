package store

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrImmutableViolation = errors.New("immutable triple cannot be changed")
	ErrUnitUnresolvable   = errors.New("numeric object has no resolvable unit")
	ErrInvalidTriple      = errors.New("triple requires subject, relation and object")
)
