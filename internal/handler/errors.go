package handler

import (
	"errors"

	"github.com/twogether/internal/callable"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/service"
)

// mapServiceError 将 service 层的哨兵错误映射为函数错误分类，无法识别时返回 nil。
func mapServiceError(err error) *callable.Error {
	var code callable.Code
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrHabitInvalidGoal):
		code = callable.CodeInvalidArgument
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrHabitNotFound),
		errors.Is(err, service.ErrReminderNotFound),
		errors.Is(err, service.ErrCouponNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrEventNotFound):
		code = callable.CodeNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		code = callable.CodePermissionDenied
	case errors.Is(err, service.ErrInvalidCredentials):
		code = callable.CodeUnauthenticated
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrAlreadyLinked),
		errors.Is(err, service.ErrNotLinked),
		errors.Is(err, service.ErrInsufficientStars),
		errors.Is(err, service.ErrCouponRedeemed),
		errors.Is(err, service.ErrCalendarUnauthorized),
		errors.Is(err, db.ErrLedgerImmutable):
		code = callable.CodeFailedPrecondition
	case errors.Is(err, service.ErrContention):
		return callable.Wrap(callable.CodeUnavailable, "the service is busy, please retry", err)
	default:
		return nil
	}
	return callable.Wrap(code, err.Error(), err)
}

func normalizeError(err error) *callable.Error {
	return callable.Normalize(err, mapServiceError)
}
