package rangecopy

import (
	"bytes"
	"context"
	"io"

	"csvsplit/pkg/contract"
)

// Copier 把一个 Boundary 物化为独立的分片文件。
// 约束：
// - 每次 Copy 独立打开输入（不共享句柄/游标），因此多个 Copy 可并发执行；
// - 非首分片先注入 BOM；
// - 表头块（若启用）紧随其后，与是否首分片无关；
// - 数据部分恰好 Boundary.Length 字节，输入提前结束视为失败。
type Copier struct {
	src    contract.Source
	dst    contract.Writer
	input  contract.FileID
	header contract.Header
}

// New 创建 Copier。header 只读共享，调用方不得在 Copy 期间修改。
func New(src contract.Source, dst contract.Writer, input contract.FileID, header contract.Header) *Copier {
	return &Copier{src: src, dst: dst, input: input, header: header}
}

// Name 返回边界对应的分片名。
func (c *Copier) Name(b contract.Boundary) contract.ArtifactID {
	return contract.PartName(c.input, b.Index)
}

// Copy 执行一次区间复制，返回写出的总字节数（含 BOM 与表头）。
// 任何失败都包装为 *contract.PartError。
func (c *Copier) Copy(ctx context.Context, b contract.Boundary) (int64, error) {
	name := c.Name(b)
	rc, err := c.src.OpenAt(ctx, c.input, b.Start)
	if err != nil {
		return 0, &contract.PartError{Index: b.Index, Name: string(name), Err: err}
	}
	defer rc.Close()

	parts := make([]io.Reader, 0, 3)
	if !b.First {
		parts = append(parts, bytes.NewReader(contract.BOM))
	}
	if hb := c.header.Bytes(b.First); len(hb) > 0 {
		parts = append(parts, bytes.NewReader(hb))
	}
	parts = append(parts, &exactReader{r: rc, n: b.Length})

	n, err := c.dst.Write(ctx, name, io.MultiReader(parts...))
	if err != nil {
		return n, &contract.PartError{Index: b.Index, Name: string(name), Err: err}
	}
	return n, nil
}

// exactReader 只放行 n 字节；底层在此之前结束则返回 io.ErrUnexpectedEOF。
type exactReader struct {
	r io.Reader
	n int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.n {
		p = p[:e.n]
	}
	n, err := e.r.Read(p)
	e.n -= int64(n)
	if err == io.EOF && e.n > 0 {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}
