package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerr "github.com/pkg/errors"
)

type CodeErrorI interface {
	ECode() int
	EMsg() string
	error
}

// CodeError carries a stable integer code alongside the message so callers
// can branch on taxonomy instead of string matching.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) ECode() int   { return e.Code }
func (e *CodeError) EMsg() string { return e.Msg }

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

// WithDetail returns a copy; the predefined errors stay immutable.
func (e *CodeError) WithDetail(detail string) *CodeError {
	c := e.clone()
	if c.Detail == "" {
		c.Detail = detail
	} else {
		c.Detail += ", " + detail
	}
	return c
}

// Wrap attaches a call stack for logging.
func (e *CodeError) Wrap() error {
	return pkgerr.WithStack(e)
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	c := e.clone()
	if msg != "" || len(kv) > 0 {
		d := toString(msg, kv)
		if c.Detail == "" {
			c.Detail = d
		} else {
			c.Detail += ", " + d
		}
	}
	return pkgerr.WithStack(c)
}

// Is matches by code so wrapped copies with extra detail still compare equal.
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	return e.Code == ce.Code
}

// Code extracts the taxonomy code from err, or 0 when err carries none.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func New(msg string, kv ...any) error {
	return pkgerr.New(toString(msg, kv))
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerr.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerr.Wrap(err, toString(msg, kv))
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprintf(" %v=%v", kv[i], kv[i+1]))
		} else {
			sb.WriteString(fmt.Sprintf(" %v", kv[i]))
		}
	}
	return sb.String()
}
