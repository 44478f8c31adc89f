// Package document implements the repository interfaces over a docstore.Store.
//
// ERROR TRANSLATION:
// This is the layer where store errors become application errors:
//
//	docstore.ErrNoDocuments  → apperror.NotFound    (404)
//	docstore.ErrDuplicateKey → apperror.Conflict    (400)
//	anything else            → apperror.Store       (400, detail only logged)
//
// Services and handlers never see a docstore error.
package document

import (
	"errors"

	"github.com/sakif/cards/internal/apperror"
	"github.com/sakif/cards/internal/docstore"
)

// translate maps a store error to an *apperror.AppError.
// resource and key describe what was being looked up, for the message.
func translate(err error, op, resource, key string) error {
	switch {
	case errors.Is(err, docstore.ErrNoDocuments):
		return apperror.NotFound(resource, key)
	case errors.Is(err, docstore.ErrDuplicateKey):
		return apperror.Conflict(resource, key)
	default:
		return apperror.Store(op, err)
	}
}
