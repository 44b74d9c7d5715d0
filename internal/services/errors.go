package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/platform/apierr"
)

// notFoundOr maps a missing row to a not_found error with code and anything
// else to a database error.
func notFoundOr(err error, code, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.NotFound(code, "%s", message)
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apierr.Database(err)
}
