package registry

import (
	"bytes"
	"encoding/json"

	"csvsplit/pkg/contract"
	rfs "csvsplit/plugins/reader/filesystem"
	"csvsplit/plugins/scanner/lines"
	wfs "csvsplit/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.Source, error)

// NewScanner 工厂签名：接收原样 JSON Options。
type NewScanner func(raw json.RawMessage) (contract.Scanner, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Source 工厂注册表（显式、零反射）。
var Source = map[string]NewSource{
	// fs: 本地文件输入，支持按偏移独立打开
	"fs": func(raw json.RawMessage) (contract.Source, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Scanner 工厂注册表。
var Scanner = map[string]NewScanner{
	// lines: 按行计数的边界扫描器
	"lines": func(raw json.RawMessage) (contract.Scanner, error) {
		var opts lines.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lines.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（独占创建/原子发布可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
