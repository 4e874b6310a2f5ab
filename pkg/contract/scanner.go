package contract

import (
	"context"
	"io"
)

// Scanner: 将输入的行数策略换算为字节边界。
// 约束：
//  1. CaptureHeader 与 Scan 必须作用在同一个缓冲读取器上（先表头，后数据）；
//  2. Scan 单遍、顺序，每到达行数配额立即 yield，不缓存边界；
//  3. 行长度按输入中的原始字节计（含实际存在的 \n 或 \r\n）；
//  4. 纯函数语义：对新的读取器重新调用即从头开始，不支持中途恢复。
type Scanner interface {
	CaptureHeader(ctx context.Context, r io.Reader, count int) (Header, error)
	Scan(ctx context.Context, r io.Reader, plan ScanPlan, yield func(Boundary) error) (ScanSummary, error)
}
