package service

import (
	"errors"

	domainerrors "examduler/pkg/domain-errors"
	"examduler/pkg/platform/sentinel"
)

// translateStoreError maps storage sentinels onto the domain error
// taxonomy. what names the entity for the client-facing message.
func translateStoreError(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerrors.Newf(domainerrors.CodeNotFound, "%s not found", what)
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return domainerrors.Newf(domainerrors.CodeConflict,
			"%s was modified concurrently, retry with fresh data", what)
	case errors.Is(err, sentinel.ErrConflict):
		return domainerrors.Newf(domainerrors.CodeConflict, "%s already exists", what)
	default:
		return domainerrors.Wrap(err, domainerrors.CodePersistence, "storage failure")
	}
}
