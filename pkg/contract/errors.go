package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（哨兵）。
var (
	// ErrInputNotFound: 输入文件不存在或不是常规文件。
	ErrInputNotFound = errors.New("input not found")
	// ErrOutputExists: 输出目录已存在。
	ErrOutputExists = errors.New("output path already exists")
	// ErrTruncatedInput: 输入行数不足以捕获配置的表头行数。
	ErrTruncatedInput = errors.New("truncated input")
	// ErrInvalidInput: 参数非法（例如 file_lines <= 0）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 分片名映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
)

// TruncatedInputError 表示表头捕获时输入提前结束。
type TruncatedInputError struct {
	Path string
	Want int
	Got  int
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("truncated input %q: header wants %d lines, got %d", e.Path, e.Want, e.Got)
}

func (e *TruncatedInputError) Unwrap() error { return ErrTruncatedInput }

// OutputCreateError 表示分片文件无法创建（重名、权限等）。
type OutputCreateError struct {
	Path string
	Err  error
}

func (e *OutputCreateError) Error() string {
	return fmt.Sprintf("create output %q: %v", e.Path, e.Err)
}

func (e *OutputCreateError) Unwrap() error { return e.Err }

// PartError 携带失败分片的序号与名称，供汇总上报。
type PartError struct {
	Index int
	Name  string
	Err   error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("part %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *PartError) Unwrap() error { return e.Err }
