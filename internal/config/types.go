package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Input: 待拆分的输入文件。
	Input string `json:"input"`
	// OutputPath: 输出目录，运行前必须不存在。
	OutputPath string `json:"output_path"`
	// FileLines: 每个分片的数据行数（>0）。
	FileLines int `json:"file_lines"`
	// Header: 复制到每个分片的表头行数（>=0）。-1 表示未设置（仅用于覆盖层）。
	Header int `json:"header"`
	// Concurrency: 同时进行的复制任务上限（>=1）。
	Concurrency int `json:"concurrency"`
	// KeepRemainder: 末尾不足 FileLines 的行是否仍输出；nil 表示未设置。
	KeepRemainder *bool `json:"keep_remainder,omitempty"`

	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Source  string `json:"source"`
	Scanner string `json:"scanner"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
// writer 的 output_dir 由 OutputPath 注入，不在此处设置。
type Options struct {
	Source  json.RawMessage `json:"source"`
	Scanner json.RawMessage `json:"scanner"`
	Writer  json.RawMessage `json:"writer"`
}
