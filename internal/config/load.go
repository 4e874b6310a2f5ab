package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "CSVSPLIT_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Input 不设默认（必须由 JSON/ENV/CLI 提供）。
func Defaults() Config {
	keep := false
	return Config{
		OutputPath:    "./output",
		FileLines:     100000,
		Header:        1,
		Concurrency:   8,
		KeepRemainder: &keep,
		Logging:       Logging{Level: "info"},
		Components: Components{
			Source:  "fs",
			Scanner: "lines",
			Writer:  "fs",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
// 未出现的 header 保持 -1（未设置），以便 Merge 区分显式的 0。
func LoadJSON(path string, raw []byte) (Config, error) {
	cfg := Config{Header: -1}
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	// 顶层
	if strings.TrimSpace(over.Input) != "" {
		out.Input = strings.TrimSpace(over.Input)
	}
	if strings.TrimSpace(over.OutputPath) != "" {
		out.OutputPath = strings.TrimSpace(over.OutputPath)
	}
	if over.FileLines != 0 {
		out.FileLines = over.FileLines
	}
	// 特殊：Header 的 0 具有语义（不复制表头），需要显式可覆盖。
	// 约定：over.Header >= 0 视为“存在”，-1 视为未覆盖。
	if over.Header >= 0 {
		out.Header = over.Header
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.KeepRemainder != nil {
		v := *over.KeepRemainder
		out.KeepRemainder = &v
	}
	// Logging
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}

	// 组件名（空不覆盖）
	if over.Components.Source != "" {
		out.Components.Source = over.Components.Source
	}
	if over.Components.Scanner != "" {
		out.Components.Scanner = over.Components.Scanner
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Source) > 0 {
		out.Options.Source = cloneRaw(over.Options.Source)
	}
	if len(over.Options.Scanner) > 0 {
		out.Options.Scanner = cloneRaw(over.Options.Scanner)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 CSVSPLIT_；空值与集合之外的键忽略；数值/布尔解析失败返回错误。
// 支持：INPUT, OUTPUT_PATH, FILE_LINES, HEADER, CONCURRENCY, KEEP_REMAINDER,
// LOG_LEVEL, LOG_DIR, COMPONENTS_{SOURCE,SCANNER,WRITER}, OPTIONS_{SOURCE,SCANNER,WRITER}_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// 默认：-1 表示未设置，以便 Merge 能区分“未覆盖”和“显式设置为 0”。
	over.Header = -1
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[:eq]
		val := strings.TrimSpace(kv[eq+1:])
		nk := strings.TrimPrefix(key, EnvPrefix)
		if val == "" {
			// 空值视为未设置，避免清空 JSON 中的配置
			continue
		}
		var err error
		switch nk {
		case "INPUT":
			over.Input = val
		case "OUTPUT_PATH":
			over.OutputPath = val
		case "FILE_LINES":
			over.FileLines, err = atoi(val)
		case "HEADER":
			if over.Header, err = atoi(val); err == nil && over.Header < 0 {
				err = fmt.Errorf("must be >= 0, got %d", over.Header)
			}
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "KEEP_REMAINDER":
			var b bool
			if b, err = strconv.ParseBool(val); err == nil {
				over.KeepRemainder = &b
			}
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_SOURCE":
			over.Components.Source = val
		case "COMPONENTS_SCANNER":
			over.Components.Scanner = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_SOURCE_JSON":
			over.Options.Source = rawOrNil(val)
		case "OPTIONS_SCANNER_JSON":
			over.Options.Scanner = rawOrNil(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = rawOrNil(val)
		default:
			// 其余键（例如 CONFIG_FILE/CONFIG_JSON）由 cmd 层处理
		}
		if err != nil {
			return over, fmt.Errorf("env %s: %w", key, err)
		}
	}
	return over, nil
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
