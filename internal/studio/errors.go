package studio

import "github.com/reelsmith/studio/internal/apperr"

var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "NOT_FOUND", "entity not found")
	ErrInvalidEntityType = apperr.New(apperr.KindValidation, "INVALID_ENTITY_TYPE", "invalid entity type")
	ErrChainCycle        = apperr.New(apperr.KindConflict, "CHAIN_CYCLE", "link would create a shot chain cycle")
)
