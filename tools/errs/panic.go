package errs

import (
	"fmt"

	pkgerr "github.com/pkg/errors"
)

const ServerInternalErrCode = 1500

func ErrPanic(r any) error {
	if r == nil {
		return nil
	}
	err := &CodeError{
		Code:   ServerInternalErrCode,
		Msg:    "panic error",
		Detail: fmt.Sprint(r),
	}
	return pkgerr.WithStack(err)
}
