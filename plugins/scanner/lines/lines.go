package lines

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"csvsplit/pkg/contract"
)

// Options 为行扫描器的可选配置（最小必要）。
type Options struct {
	// BufSize: 读缓冲区大小（字节）。默认 64KiB；超长行跨缓冲累计，不受其限制。
	BufSize int `json:"buf_size"`
	// Newline: 表头重新结尾所用换行，"lf"（默认）或 "crlf"。
	// 数据区间按原始字节复制，不受该选项影响。
	Newline string `json:"newline"`
}

// Scanner 实现按行计数的边界扫描与表头捕获。
type Scanner struct {
	bufSize int
	newline string
}

const defaultBufSize = 64 * 1024

// New 创建行扫描器。
func New(opts *Options) (*Scanner, error) {
	b := defaultBufSize
	nl := "\n"
	if opts != nil {
		if opts.BufSize > 0 {
			b = opts.BufSize
		}
		switch strings.ToLower(strings.TrimSpace(opts.Newline)) {
		case "", "lf":
		case "crlf":
			nl = "\r\n"
		default:
			return nil, fmt.Errorf("%w: newline %q (want lf|crlf)", contract.ErrInvalidInput, opts.Newline)
		}
	}
	return &Scanner{bufSize: b, newline: nl}, nil
}

var _ contract.Scanner = (*Scanner)(nil)

// Buffered 返回可在 CaptureHeader 与 Scan 之间共享的读取器。
// 已是 *bufio.Reader 时原样返回，避免二次包装吞掉预读的字节。
func (s *Scanner) Buffered(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReaderSize(r, s.bufSize)
}

// CaptureHeader 消耗开头 count 行作为表头。
// 行内容去掉原始行尾后以统一换行重新结尾；RawLen 记录原始字节数（含原行尾与 BOM）。
func (s *Scanner) CaptureHeader(ctx context.Context, r io.Reader, count int) (contract.Header, error) {
	h := contract.Header{Newline: s.newline}
	if count < 0 {
		return h, fmt.Errorf("%w: header count must be >= 0, got %d", contract.ErrInvalidInput, count)
	}
	if count == 0 {
		return h, nil
	}
	br := s.Buffered(r)
	for i := 0; i < count; i++ {
		if err := ctxErr(ctx); err != nil {
			return h, err
		}
		raw, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return h, err
		}
		if len(raw) == 0 {
			return h, &contract.TruncatedInputError{Want: count, Got: i}
		}
		h.RawLen += int64(len(raw))
		line := bytes.TrimSuffix(raw, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if i == 0 && bytes.HasPrefix(line, contract.BOM) {
			h.BOM = true
			line = line[len(contract.BOM):]
		}
		h.Lines = append(h.Lines, line)
	}
	return h, nil
}

// Scan 单遍读取数据行，每满 plan.FileLines 行即通过 yield 发出一个边界。
// 末尾不足配额的行：KeepRemainder=false 时丢弃并计入 Dropped*；否则作为最后一个边界发出。
// yield 返回错误时立即中止并原样返回。
func (s *Scanner) Scan(ctx context.Context, r io.Reader, plan contract.ScanPlan, yield func(contract.Boundary) error) (contract.ScanSummary, error) {
	var sum contract.ScanSummary
	if plan.FileLines <= 0 {
		return sum, fmt.Errorf("%w: file_lines must be > 0, got %d", contract.ErrInvalidInput, plan.FileLines)
	}
	if plan.Start < 0 {
		return sum, fmt.Errorf("%w: start offset must be >= 0, got %d", contract.ErrInvalidInput, plan.Start)
	}
	br := s.Buffered(r)

	start := plan.Start
	index := 0
	var lines, size int64
	emit := func() error {
		b := contract.Boundary{Start: start, Length: size, Index: index, First: index == 0}
		if err := yield(b); err != nil {
			return err
		}
		sum.Boundaries++
		sum.DataLines += lines
		sum.DataBytes += size
		start += size
		index++
		lines, size = 0, 0
		return nil
	}

	quota := int64(plan.FileLines)
	for {
		if err := ctxErr(ctx); err != nil {
			return sum, err
		}
		n, err := lineLen(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}
		lines++
		size += n
		if lines == quota {
			if err := emit(); err != nil {
				return sum, err
			}
		}
	}

	if lines > 0 {
		if plan.KeepRemainder {
			if err := emit(); err != nil {
				return sum, err
			}
		} else {
			sum.DroppedLines = lines
			sum.DroppedBytes = size
		}
	}
	return sum, nil
}

// lineLen 消耗一行并返回其原始字节数（含实际行尾）。
// 无行尾的末行按其字节数计；输入耗尽时返回 0, io.EOF。
func lineLen(br *bufio.Reader) (int64, error) {
	var n int64
	for {
		b, err := br.ReadSlice('\n')
		n += int64(len(b))
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, bufio.ErrBufferFull):
			// 超长行：继续累计
		case errors.Is(err, io.EOF):
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		default:
			return n, err
		}
	}
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
