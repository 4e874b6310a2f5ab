package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出分片标识（相对输出根的文件名）。
type ArtifactID = FileID

// Writer: 将分片内容以流式方式持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 仅创建一次，已存在则失败（不覆盖）；
//  2. 流式写入（O(1) 额外内存），按字节透传，不读取/修改内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
//
// 返回值 n 为写出的字节数。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) (n int64, err error)
}
