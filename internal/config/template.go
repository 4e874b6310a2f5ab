package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入留空，需由 CLI 位置参数或 CSVSPLIT_INPUT 提供；
// - 组件名采用仓库内置实现；
// - 选项给出安全中性默认值，并包含所有键，便于按需修改。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		OutputPath:    d.OutputPath,
		FileLines:     d.FileLines,
		Header:        d.Header,
		Concurrency:   d.Concurrency,
		KeepRemainder: d.KeepRemainder,
		Logging:       Logging{Level: "info", Dir: "logs"},
		Components:    d.Components,
	}
	cfg.Options.Source = json.RawMessage(`{
  "buf_size": 65536
}`)
	cfg.Options.Scanner = json.RawMessage(`{
  "buf_size": 65536,
  "newline": "lf"
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
