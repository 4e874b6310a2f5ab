package contract

import "bytes"

// FileID: 逻辑输入标识（通常为路径，需规范化，跨平台一致）。
type FileID string

// BOM 为 UTF-8 字节序标记。
var BOM = []byte{0xEF, 0xBB, 0xBF}

// Header: 表头块。一次捕获、只读共享给所有 Range Copier。
// 约束：
// - Lines 不含原始行尾；输出时统一以 Newline 重新结尾；
// - RawLen 为输入开头被消耗的原始字节数（含原始行尾与 BOM）；
// - BOM 表示输入本身以 UTF-8 BOM 开头（已从首行剥离）。
type Header struct {
	Lines   [][]byte
	RawLen  int64
	BOM     bool
	Newline string
}

// Count 返回表头行数。
func (h Header) Count() int { return len(h.Lines) }

// Bytes 渲染表头块。
// first=true 时带上输入自身的 BOM（首个分片本就应以其开头）；其余分片的 BOM 由复制器注入。
func (h Header) Bytes(first bool) []byte {
	if len(h.Lines) == 0 {
		if first && h.BOM {
			return append([]byte(nil), BOM...)
		}
		return nil
	}
	var b bytes.Buffer
	if first && h.BOM {
		b.Write(BOM)
	}
	nl := h.Newline
	if nl == "" {
		nl = "\n"
	}
	for _, l := range h.Lines {
		b.Write(l)
		b.WriteString(nl)
	}
	return b.Bytes()
}

// Boundary: 单个分片在输入中的字节区间。
// 约束：
// - Index 自 0 严格递增；First == (Index == 0)；
// - 相邻边界连续且不重叠：Start(i+1) == Start(i) + Length(i)。
type Boundary struct {
	Start  int64
	Length int64
	Index  int
	First  bool
}

// End 返回区间右端（不含）。
func (b Boundary) End() int64 { return b.Start + b.Length }

// ScanPlan: 一次扫描的参数。
type ScanPlan struct {
	// Start: 首个数据边界的起始偏移（表头之后的第一个字节）。
	Start int64
	// FileLines: 每个分片的数据行数，必须 > 0。
	FileLines int
	// KeepRemainder: 末尾不足 FileLines 的分片是否仍输出。
	// false 时该部分被丢弃，并记录在 ScanSummary.Dropped* 中。
	KeepRemainder bool
}

// ScanSummary: 扫描结束后的汇总。
type ScanSummary struct {
	Boundaries   int
	DataLines    int64
	DataBytes    int64
	DroppedLines int64
	DroppedBytes int64
}
