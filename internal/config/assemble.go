package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"csvsplit/internal/pipeline"
	"csvsplit/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Input) == "" {
		return errors.New("config: input not set")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return errors.New("config: output_path not set")
	}
	if cfg.FileLines <= 0 {
		return fmt.Errorf("config: file_lines must be > 0, got %d", cfg.FileLines)
	}
	if cfg.Header < 0 {
		return fmt.Errorf("config: header must be >= 0, got %d", cfg.Header)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", cfg.Concurrency)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q (want debug|info|warn|error)", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	if name := effName(cfg.Components.Source, Defaults().Components.Source); registry.Source[name] == nil {
		return fmt.Errorf("config: source %q not registered", name)
	}
	if name := effName(cfg.Components.Scanner, Defaults().Components.Scanner); registry.Scanner[name] == nil {
		return fmt.Errorf("config: scanner %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, Defaults().Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
// writer 的 output_dir 总是取自 OutputPath，保证 Writer 根目录与预检目录一致。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults()
	sn := effName(cfg.Components.Source, d.Components.Source)
	cn := effName(cfg.Components.Scanner, d.Components.Scanner)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	// 构造实例
	src, err := registry.Source[sn](cfg.Options.Source)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: source options: %w", err)
	}
	sc, err := registry.Scanner[cn](cfg.Options.Scanner)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: scanner options: %w", err)
	}
	wraw, err := withOutputDir(cfg.Options.Writer, cfg.OutputPath)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	w, err := registry.Writer[wn](wraw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer options: %w", err)
	}

	comp := pipeline.Components{
		Source:  src,
		Scanner: sc,
		Writer:  w,
	}
	set := pipeline.Settings{
		Input:         cfg.Input,
		OutputDir:     cfg.OutputPath,
		FileLines:     cfg.FileLines,
		Header:        cfg.Header,
		KeepRemainder: cfg.KeepRemainder != nil && *cfg.KeepRemainder,
		Concurrency:   cfg.Concurrency,
	}
	return comp, set, nil
}

// withOutputDir 将 output_dir 注入 writer 的原样 Options；显式设置 output_dir 视为配置错误。
func withOutputDir(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("config: writer options: %w", err)
		}
	}
	if _, ok := m["output_dir"]; ok {
		return nil, errors.New("config: options.writer.output_dir is derived from output_path; remove it")
	}
	b, err := json.Marshal(dir)
	if err != nil {
		return nil, err
	}
	m["output_dir"] = b
	return json.Marshal(m)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
