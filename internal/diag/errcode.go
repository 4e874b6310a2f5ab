package diag

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"csvsplit/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总；退出码由 cmd 层依据分类映射。
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeInputNotFound Code = "input_not_found"
	CodeOutputExists  Code = "output_exists"
	CodeTruncated     Code = "truncated"
	CodeInvariant     Code = "invariant"
	CodeCancel        Code = "cancel"
	CodeIO            Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrInputNotFound) {
		return CodeInputNotFound
	}
	if errors.Is(err, contract.ErrOutputExists) {
		return CodeOutputExists
	}
	if errors.Is(err, contract.ErrTruncatedInput) {
		return CodeTruncated
	}
	// 不变量
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// I/O（含分片复制时输入提前结束）
	var perr *os.PathError
	var cerr *contract.OutputCreateError
	if errors.As(err, &perr) || errors.As(err, &cerr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
