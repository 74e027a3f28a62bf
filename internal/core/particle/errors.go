package particle

import "errors"

var (
	ErrModuleStackMismatch = errors.New("module stacks differ between LOD levels")
	ErrModuleBytes         = errors.New("module reported an invalid payload size")
	ErrMissingRequired     = errors.New("LOD level has no required settings")
	ErrNoLODLevels         = errors.New("emitter has no LOD levels")
	ErrUnknownModule       = errors.New("unknown module type")
	ErrResizeCeiling       = errors.New("particle buffer ceiling reached")
	ErrNotFinalized        = errors.New("tick has not been finalized")
	ErrClosed              = errors.New("particle system is closed")
	ErrInvalidDefinition   = errors.New("invalid particle definition")
)
