package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"csvsplit/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 是否先写同目录临时文件，完成后以“不覆盖”方式发布到最终文件名。
	// 默认 false：直接以独占方式创建目标文件。
	Atomic *bool `json:"atomic,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用实现/平台默认。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用实现默认。
	BufSize int `json:"buf_size,omitempty"`
}

type FS struct {
	root    string
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := false
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	return &FS{root: opts.OutputDir, atomic: atomic, permF: pf, permD: pd, bufSize: bsz}, nil
}

var _ contract.Writer = (*FS)(nil)

// Root 返回输出根目录。
func (w *FS) Root() string { return w.root }

// Write 将 r 的全部字节写入 id 映射的目标路径；目标已存在时失败，不覆盖。
// 创建失败返回 *contract.OutputCreateError；写入失败时删除本次创建的文件。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	dest, err := w.mapPath(id)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return 0, &contract.OutputCreateError{Path: dest, Err: err}
	}

	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeExclusive(ctx, dest, r)
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(string(id))
	// 禁止空名、绝对路径、父级逃逸、Windows 卷名
	if rel == "." || rel == "" {
		return "", contract.ErrPathInvalid
	}
	if filepath.IsAbs(rel) {
		return "", contract.ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeExclusive(ctx context.Context, dest string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, w.permF)
	if err != nil {
		return 0, &contract.OutputCreateError{Path: dest, Err: err}
	}

	bw := bufio.NewWriterSize(f, w.bufSize)
	n, err := io.Copy(bw, readerWithCtx(ctx, r))
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// 独占创建的文件归本次写入所有，失败即清理，避免留下残缺分片
		_ = os.Remove(dest)
		return n, err
	}
	return n, nil
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) (int64, error) {
	// 先行检查：目标已存在则不做任何写入
	if _, err := os.Lstat(dest); err == nil {
		return 0, &contract.OutputCreateError{Path: dest, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, &contract.OutputCreateError{Path: dest, Err: err}
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, &contract.OutputCreateError{Path: dest, Err: err}
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	n, err := io.Copy(bw, readerWithCtx(ctx, r))
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return n, err
	}
	// 平台特定的“不覆盖”发布
	if err := osPublish(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return n, &contract.OutputCreateError{Path: dest, Err: err}
	}
	// 最佳努力：同步父目录，提升崩溃安全性
	_ = syncDir(dir)
	return n, nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}
