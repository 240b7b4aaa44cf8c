package safe

import (
	"SuperChat/logger"
	"SuperChat/tools/errs"
)

// Go starts a goroutine that recovers from panic so a misbehaving handler
// cannot take the whole gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %+v", errs.ErrPanic(r))
			}
		}()
		f()
	}()
}
