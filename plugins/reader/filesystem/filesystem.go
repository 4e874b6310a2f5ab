package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"csvsplit/pkg/contract"
)

// Options 为 FileSystem Source 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
}

// FileSystem 实现基于本地文件的 Source。
// 每次 Open/OpenAt 都打开独立句柄，调用方之间不共享读游标。
type FileSystem struct {
	bufSize int
}

// New 创建 FileSystem Source。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	return &FileSystem{bufSize: b}
}

var _ contract.Source = (*FileSystem)(nil)

// Stat 校验输入存在且（跟随符号链接后）为常规文件，返回其大小。
// 不存在或非常规文件统一归为 ErrInputNotFound。
func (r *FileSystem) Stat(ctx context.Context, fileID contract.FileID) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	info, err := os.Stat(string(fileID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", contract.ErrInputNotFound, fileID)
		}
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", contract.ErrInputNotFound, fileID)
	}
	return info.Size(), nil
}

// Open 打开输入并从头顺序读取。
func (r *FileSystem) Open(ctx context.Context, fileID contract.FileID) (io.ReadCloser, error) {
	return r.OpenAt(ctx, fileID, 0)
}

// OpenAt 打开独立句柄并定位到 off。
func (r *FileSystem) OpenAt(ctx context.Context, fileID contract.FileID, off int64) (io.ReadCloser, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if off < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", contract.ErrInvalidInput, off)
	}
	f, err := os.Open(string(fileID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", contract.ErrInputNotFound, err)
		}
		return nil, err
	}
	if off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return newBufferedCloser(f, r.bufSize), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
