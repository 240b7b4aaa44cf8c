package errs

// Error codes grouped by concern: 11xx auth, 12xx records, 13xx storage,
// 14xx delivery.
const (
	ArgsErrCode           = 1001
	UnauthorizedCode      = 1101
	AuthTimeoutCode       = 1102
	ForbiddenCode         = 1103
	TokenInvalidCode      = 1104
	RecordNotFoundCode    = 1201
	RecordExistsCode      = 1202
	PersistenceFailedCode = 1301
	DeliveryExpiredCode   = 1401
)

var (
	ErrArgs              = NewCodeError(ArgsErrCode, "ArgsError")
	ErrUnauthorized      = NewCodeError(UnauthorizedCode, "Unauthorized")
	ErrAuthTimeout       = NewCodeError(AuthTimeoutCode, "AuthTimeout")
	ErrForbidden         = NewCodeError(ForbiddenCode, "Forbidden")
	ErrTokenInvalid      = NewCodeError(TokenInvalidCode, "TokenInvalid")
	ErrRecordNotFound    = NewCodeError(RecordNotFoundCode, "RecordNotFound")
	ErrRecordExists      = NewCodeError(RecordExistsCode, "RecordExists")
	ErrPersistenceFailed = NewCodeError(PersistenceFailedCode, "PersistenceFailed")
	ErrDeliveryExpired   = NewCodeError(DeliveryExpiredCode, "DeliveryExpired")
)
