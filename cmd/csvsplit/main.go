package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	cfgpkg "csvsplit/internal/config"
	"csvsplit/internal/diag"
	"csvsplit/internal/pipeline"
	"csvsplit/pkg/contract"
)

// version 在构建时通过 -ldflags "-X main.version=..." 注入。
var version = "dev"

var pipelineRun = pipeline.Run

// 退出码
const (
	exitOK      = 0
	exitRun     = 1
	exitPreflow = 2 // 输入不存在 / 输出目录已存在
	exitConfig  = 3
)

// 简化的 CLI：csvsplit [flags] <input_path>
// 位置参数与旗标可任意顺序；长短名等价（-f/--file-lines 等）。
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := diag.NewCorrID()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level
	logger := diag.NewLogger(corrID, "info")
	defer func() { _ = logger.Close() }()

	var (
		flagConfig      string
		flagFileLines   int
		flagOutput      string
		flagHeader      int
		flagDebug       countFlag
		flagConcurrency int
		flagKeep        bool
		flagInitDir     string
		flagStatus      bool
		flagVersion     bool
	)
	fs := flag.CommandLine
	fs.StringVar(&flagConfig, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	fs.IntVar(&flagFileLines, "file-lines", 0, "每个分片的数据行数（覆盖配置；默认 100000）")
	fs.IntVar(&flagFileLines, "f", 0, "同 --file-lines")
	fs.StringVar(&flagOutput, "output-path", "", "输出目录，必须不存在（覆盖配置；默认 ./output）")
	fs.StringVar(&flagOutput, "o", "", "同 --output-path")
	// header 允许显式设置为 0；默认 -1 表示“未覆盖”。
	fs.IntVar(&flagHeader, "header", -1, "复制到每个分片的表头行数（覆盖配置；默认 1，0 表示不复制）")
	fs.Var(&flagDebug, "debug", "调试输出；可重复（-d -d），>=1 时日志等级为 debug")
	fs.Var(&flagDebug, "d", "同 --debug")
	fs.IntVar(&flagConcurrency, "concurrency", 0, "同时进行的复制任务上限（覆盖配置；默认 8）")
	fs.IntVar(&flagConcurrency, "c", 0, "同 --concurrency")
	fs.BoolVar(&flagKeep, "keep-remainder", false, "末尾不足 file-lines 的行仍输出为最后一个分片")
	fs.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（若已存在则跳过，不覆盖）；不带值时默认当前目录")
	fs.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	fs.BoolVar(&flagVersion, "version", false, "打印版本并退出")
	if err := fs.Parse(normalizeArgs(fs, os.Args[1:])); err != nil {
		return exitConfig
	}

	if flagVersion {
		fmt.Fprintf(os.Stdout, "csvsplit %s\n", version)
		return exitOK
	}

	// --init-config: 生成模板并退出
	if initDir := strings.TrimSpace(flagInitDir); initDir != "" {
		// 创建目录（若不存在）
		if err := os.MkdirAll(initDir, 0o755); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("pipeline", string(diag.Classify(err)), "init config failed", &start)
			return exitConfig
		}
		cfg := cfgpkg.DefaultTemplateConfig()
		if err := writeConfig(filepath.Join(initDir, "config.json"), cfg); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("pipeline", string(diag.Classify(err)), "init config failed", &start)
			return exitConfig
		}
		// 生成 .env 模板（不覆盖已存在文件）。
		if err := writeDotEnv(filepath.Join(initDir, ".env")); err != nil {
			fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
		}
		return exitOK
	}

	// JSON 配置（文件或 ENV: CSVSPLIT_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if flagConfig == "" {
		flagConfig = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	// 默认读取工作目录下 config.json（若存在）
	if flagConfig == "" {
		if _, err := os.Stat("config.json"); err == nil {
			flagConfig = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if flagConfig != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(flagConfig, cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("pipeline", string(diag.Classify(err)), "config load failed", &start)
			return exitConfig
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（最小集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "env overlay failed", &start)
		return exitConfig
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	if flagHeader < -1 {
		fprintf(os.Stderr, "--header 必须 >= 0，得到 %d\n", flagHeader)
		return exitConfig
	}
	overCLI := cfgpkg.Config{Header: flagHeader}
	if args := fs.Args(); len(args) > 1 {
		fprintf(os.Stderr, "只接受一个输入文件，得到 %d 个: %s\n", len(args), strings.Join(args, " "))
		return exitConfig
	} else if len(args) == 1 {
		overCLI.Input = args[0]
	}
	overCLI.FileLines = flagFileLines
	overCLI.OutputPath = flagOutput
	overCLI.Concurrency = flagConcurrency
	if flagKeep {
		overCLI.KeepRemainder = &flagKeep
	}
	if flagDebug > 0 {
		overCLI.Logging.Level = "debug"
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	// 基本校验 & 装配
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		logger.Error("pipeline", string(diag.Classify(err)), "config invalid", &start)
		return exitConfig
	}

	// 使用最终配置中的日志级别与目录重建 logger
	_ = logger.Close()
	logger = diag.NewLoggerAt(corrID, cfg.Logging.Level, cfg.Logging.Dir)

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "assemble failed", &start)
		return exitConfig
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(os.Stderr, flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, cfg.Input)

	logger.DebugStart("config", "effective", "", "", map[string]string{
		"input":          cfg.Input,
		"output_path":    cfg.OutputPath,
		"file_lines":     strconv.Itoa(cfg.FileLines),
		"header":         strconv.Itoa(cfg.Header),
		"concurrency":    strconv.Itoa(cfg.Concurrency),
		"keep_remainder": strconv.FormatBool(set.KeepRemainder),
		"source":         cfg.Components.Source,
		"scanner":        cfg.Components.Scanner,
		"writer":         cfg.Components.Writer,
		"debug":          strconv.Itoa(int(flagDebug)),
	})

	// SIGINT/SIGTERM 取消整体运行；在途复制在下一次读写时中止
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := logger.Start("pipeline", "run")
	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "run failed", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		if errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "已取消\n")
		} else {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		if n := rep.Failed(); n > 0 {
			fprintf(os.Stderr, "失败分片 %d/%d\n", n, len(rep.Parts))
		}
		term.RunFinish(false, time.Since(start))
		return exitCode(err)
	}
	t.Finish("run", int64(len(rep.Parts)))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	if rep.Summary.DroppedLines > 0 {
		fprintf(os.Stderr, "提示：末尾 %d 行不足 %d 行，未输出（--keep-remainder 可保留）\n", rep.Summary.DroppedLines, set.FileLines)
	}
	term.RunFinish(true, time.Since(start))
	return exitOK
}

// exitCode 将运行期错误映射为退出码。
// 预检与参数类退出码只看分片之外的错误；分片内的同类哨兵（如运行中输入被删除）归为运行失败。
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case outsideParts(err, contract.ErrInputNotFound), outsideParts(err, contract.ErrOutputExists):
		return exitPreflow
	case outsideParts(err, contract.ErrInvalidInput):
		return exitConfig
	default:
		return exitRun
	}
}

// outsideParts 与 errors.Is 相同，但不进入 *contract.PartError 内部。
func outsideParts(err, target error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*contract.PartError); ok {
		return false
	}
	if err == target {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if outsideParts(e, target) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return outsideParts(u.Unwrap(), target)
	}
	return false
}

// countFlag 为可重复的计数旗标：每出现一次加一，也接受显式数值（-d=2）。
type countFlag int

func (c *countFlag) String() string {
	if c == nil {
		return "0"
	}
	return strconv.Itoa(int(*c))
}

func (c *countFlag) Set(s string) error {
	switch s {
	case "", "true":
		*c++
		return nil
	case "false":
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %q", s)
	}
	*c = countFlag(n)
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

// normalizeArgs: 预处理命令行，使标准 flag 包支持本 CLI 的习惯写法。
//   - 位置参数可出现在旗标之前或之间（移动到末尾 "--" 之后）；原有 "--" 之后原样视为位置参数；
//   - -dd / -ddd 展开为重复的 -d；
//   - 裸 --init-config（末尾或后继为旗标）补默认值当前目录 "."。
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	flags := make([]string, 0, len(args)+1)
	var pos []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			pos = append(pos, a)
			continue
		}
		name := strings.TrimLeft(a, "-")
		if len(name) > 1 && strings.Trim(name, "d") == "" && a[1] != '-' {
			for range name {
				flags = append(flags, "-d")
			}
			continue
		}
		flags = append(flags, a)
		if strings.Contains(name, "=") {
			continue
		}
		if name == "init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, ".")
				continue
			}
		}
		f := fs.Lookup(name)
		if f == nil || isBoolFlag(f) {
			continue
		}
		// 值旗标：下一个参数为其值
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(pos) == 0 {
		return flags
	}
	// "--" 阻止以 - 开头的位置参数被再次当作旗标
	flags = append(flags, "--")
	return append(flags, pos...)
}

func isBoolFlag(f *flag.Flag) bool {
	bf, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && bf.IsBoolFlag()
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export ".
// - 仅按首个 '=' 分割；key 为左侧去空白；value 去首尾空白；
// - 若 value 被成对的单/双引号包裹，则去除外层引号；双引号内常见转义 \n/\t/\\/\" 作最小处理。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		// 去除成对引号
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					// 最小转义处理
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		// 空值视为未设置，便于保留模板中的空键
		if val == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# csvsplit .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	for _, k := range []string{"CONFIG_FILE", "CONFIG_JSON"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 运行参数覆盖\n")
	for _, k := range []string{"INPUT", "OUTPUT_PATH", "FILE_LINES", "HEADER", "CONCURRENCY", "KEEP_REMAINDER", "LOG_LEVEL", "LOG_DIR"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"COMPONENTS_SOURCE", "COMPONENTS_SCANNER", "COMPONENTS_WRITER", "OPTIONS_SOURCE_JSON", "OPTIONS_SCANNER_JSON", "OPTIONS_WRITER_JSON"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}

	// 写入（不覆盖）
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
