package models

import "errors"

// Error classes shared by every layer. Wrap them with fmt.Errorf("%w: ...").
var (
	ErrConfiguration       = errors.New("ConfigurationError")
	ErrValidation          = errors.New("ValidationError")
	ErrTransientTransport  = errors.New("TransientTransportError")
	ErrPersistenceConflict = errors.New("PersistenceConflict")
	ErrNotFound            = errors.New("not found")
)
