package services

import (
	"errors"

	"github.com/yqms/instructionflow/internal/apperr"
)

func isNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, apperr.ErrConflict) }
