package contract

import (
	"context"
	"io"
)

// Source: 输入源抽象。
// 约束：
// 1) Open 返回从头开始的顺序流（供扫描）；
// 2) OpenAt 每次返回独立句柄并已定位到 off，调用方之间不共享游标；
// 3) 不做解码/业务解析，仅提供字节流；
// 4) 不在内部起并发。
type Source interface {
	Stat(ctx context.Context, fileID FileID) (size int64, err error)
	Open(ctx context.Context, fileID FileID) (io.ReadCloser, error)
	OpenAt(ctx context.Context, fileID FileID, off int64) (io.ReadCloser, error)
}
