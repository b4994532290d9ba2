package decision

import "fmt"

// 错误分级：skip 只影响单个标的；degrade 记录降级后继续；
// contract 表示内部契约被破坏，整批作废、零输出。

type SkipError struct {
	Code string
	Err  error
}

func (e *SkipError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *SkipError) Unwrap() error { return e.Err }

func Skip(code string, err error) *SkipError {
	return &SkipError{Code: code, Err: err}
}

func Skipf(code, format string, args ...any) *SkipError {
	return &SkipError{Code: code, Err: fmt.Errorf(format, args...)}
}

type DegradeError struct {
	Reason string
	Err    error
}

func (e *DegradeError) Error() string { return fmt.Sprintf("%s: %v", e.Reason, e.Err) }
func (e *DegradeError) Unwrap() error { return e.Err }

type ContractError struct {
	Stage string
	Err   error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation at %s: %v", e.Stage, e.Err)
}
func (e *ContractError) Unwrap() error { return e.Err }

func Contractf(stage, format string, args ...any) *ContractError {
	return &ContractError{Stage: stage, Err: fmt.Errorf(format, args...)}
}
