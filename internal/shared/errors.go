package shared

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("não encontrado")
	// ErrValidation indicates unparseable or out-of-domain input.
	ErrValidation = errors.New("dados inválidos")
	// ErrTermoRequired occurs when a termo-scoped operation misses the termo key.
	ErrTermoRequired = errors.New("número do termo é obrigatório")
)
