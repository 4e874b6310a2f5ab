package contract

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// PartExt 为分片文件扩展名。
const PartExt = ".csv"

// NormalizeFileID 规范化路径，得到用于日志与报告的稳定 FileID。
// 规则：
// - 本平台分隔符统一为正斜杠（Unix 上反斜杠是合法文件名字符，原样保留）
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
// 结果只用于展示；读写文件系统使用 filepath.Clean 后的原始路径。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(filepath.ToSlash(p)))
}

// Stem 返回输入路径的基名去掉最后一个扩展名（"data/a.b.csv" -> "a.b"）。
// 基名按本平台分隔符切分。以点开头且无其他点的名字（如 ".csv"）整体视为 stem。
func Stem(id FileID) string {
	base := filepath.Base(string(id))
	ext := path.Ext(base)
	if ext == base {
		return base
	}
	return strings.TrimSuffix(base, ext)
}

// PartName 返回第 index 个分片的文件名：{stem}_{index}.csv。
func PartName(id FileID, index int) ArtifactID {
	return ArtifactID(fmt.Sprintf("%s_%d%s", Stem(id), index, PartExt))
}
