package service

import (
	"errors"

	"github.com/sakif/brainbox/internal/apperror"
)

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
