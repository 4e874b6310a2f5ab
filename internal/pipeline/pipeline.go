package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"csvsplit/internal/diag"
	"csvsplit/internal/rangecopy"
	"csvsplit/pkg/contract"
)

// - 单一生产者：Scanner 在调用方 goroutine 内顺序扫描，每得到一个边界立即派发。
// - 有界并发：复制任务由 errgroup 承载，SetLimit 限制在途数量；饱和时派发阻塞，扫描随之暂停。
// - 汇总而非首错取消：单个分片失败不影响其他分片；Wait 之后统一汇总为一个错误。
// - 预检顺序：输入存在 → 输出目录不存在 → 表头捕获 → 创建输出目录；预检失败不写任何文件。

// DefaultConcurrency 为未配置时的复制并发上限。
const DefaultConcurrency = 8

// Components 聚合运行所需的原子组件。
type Components struct {
	Source  contract.Source
	Scanner contract.Scanner
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Input: 输入文件。
	Input string
	// OutputDir: 输出目录，必须不存在；由本层创建。须与 Writer 的根目录一致。
	OutputDir string
	// FileLines: 每个分片的数据行数（>0）。
	FileLines int
	// Header: 复制到每个分片的表头行数（>=0）。
	Header int
	// KeepRemainder: 末尾不足 FileLines 的行是否仍输出为最后一个分片。
	KeepRemainder bool
	// Concurrency: 同时进行的复制任务上限（<=0 时取默认值）。
	Concurrency int
}

// bufferedScanner 由扫描器自行决定共享读取器的缓冲大小。
type bufferedScanner interface {
	Buffered(r io.Reader) *bufio.Reader
}

const defaultBufSize = 64 * 1024

// PartResult 为单个分片的结果。
type PartResult struct {
	Index int
	Name  string
	Bytes int64
	Err   error
}

// Report 为一次运行的汇总：所有已派发分片的结果按 Index 排序。
type Report struct {
	Input   contract.FileID
	Header  contract.Header
	Parts   []PartResult
	Summary contract.ScanSummary
}

// Failed 返回失败分片数。
func (r Report) Failed() int {
	n := 0
	for _, p := range r.Parts {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Run 执行完整流程：预检 → 表头捕获 → 扫描并派发 → 等待全部复制结束。
// 返回的 Report 在预检通过后总是有效（即使部分分片失败）；
// 任一分片失败时返回 errors.Join 汇总的错误。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	if err := sanity(comp, set); err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	// input 用于文件系统访问；id 仅用于日志与报告
	input := contract.FileID(filepath.Clean(set.Input))
	id := contract.NormalizeFileID(set.Input)
	rep := Report{Input: id}
	runStart := time.Now()

	var ptimer *diag.Timer
	if logger != nil {
		ptimer = logger.StartWithKV("pipeline", "split", string(id), "", map[string]string{
			"output":      set.OutputDir,
			"file_lines":  strconv.Itoa(set.FileLines),
			"header":      strconv.Itoa(set.Header),
			"concurrency": strconv.Itoa(concurrency(set)),
		})
	}
	fail := func(name, msg string, err error) error {
		if logger != nil {
			code := diag.Classify(err)
			logger.ErrorWithKV(name, string(code), msg, &runStart, string(id), "", map[string]string{"err": err.Error()})
			diag.IncOp(name, "error", "error")
			if code != diag.CodeUnknown {
				diag.IncError(name, string(code))
			}
		}
		return err
	}

	// 预检：输入
	if _, err := comp.Source.Stat(ctx, input); err != nil {
		return rep, fail("pipeline", "input check failed", fmt.Errorf("input %q: %w", set.Input, err))
	}
	// 预检：输出目录不得存在（含悬空符号链接）
	if _, err := os.Lstat(set.OutputDir); err == nil {
		return rep, fail("pipeline", "output exists", fmt.Errorf("%q: %w", set.OutputDir, contract.ErrOutputExists))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return rep, fail("pipeline", "output check failed", fmt.Errorf("output %q: %w", set.OutputDir, err))
	}

	rc, err := comp.Source.Open(ctx, input)
	if err != nil {
		return rep, fail("pipeline", "open input failed", fmt.Errorf("open input: %w", err))
	}
	defer rc.Close()
	// 表头与扫描共享同一个缓冲读取器
	var br *bufio.Reader
	if bs, ok := comp.Scanner.(bufferedScanner); ok {
		br = bs.Buffered(rc)
	} else {
		br = bufio.NewReaderSize(rc, defaultBufSize)
	}

	var htimer *diag.Timer
	if logger != nil {
		htimer = logger.StartWith("header", "capture", string(id), "")
	}
	header, err := comp.Scanner.CaptureHeader(ctx, br, set.Header)
	if err != nil {
		var te *contract.TruncatedInputError
		if errors.As(err, &te) {
			te.Path = set.Input
		}
		return rep, fail("header", "capture failed", fmt.Errorf("header: %w", err))
	}
	rep.Header = header
	if htimer != nil {
		htimer.Finish("capture", int64(header.Count()))
		diag.IncOp("header", "finish", "success")
	}

	// 表头就绪后才创建输出目录；并发创建者在此处落败
	if err := os.Mkdir(set.OutputDir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = fmt.Errorf("%q: %w", set.OutputDir, contract.ErrOutputExists)
		} else {
			err = fmt.Errorf("create output %q: %w", set.OutputDir, err)
		}
		return rep, fail("pipeline", "create output failed", err)
	}

	copier := rangecopy.New(comp.Source, comp.Writer, input, header)
	term := diag.GetTerminal()
	if term != nil {
		term.FileStart(string(id), set.FileLines)
	}

	var (
		mu                     sync.Mutex
		results                []PartResult
		dispatched, done, errs int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency(set))

	var stimer *diag.Timer
	if logger != nil {
		stimer = logger.StartWith("scanner", "scan", string(id), "")
	}
	plan := contract.ScanPlan{Start: header.RawLen, FileLines: set.FileLines, KeepRemainder: set.KeepRemainder}
	sum, scanErr := comp.Scanner.Scan(gctx, br, plan, func(b contract.Boundary) error {
		name := string(copier.Name(b))
		if logger != nil {
			logger.DebugStart("dispatcher", "dispatch", string(id), name, map[string]string{
				"start":  strconv.FormatInt(b.Start, 10),
				"length": strconv.FormatInt(b.Length, 10),
				"end":    strconv.FormatInt(b.End(), 10),
			})
		}
		mu.Lock()
		dispatched++
		mu.Unlock()
		g.Go(func() error {
			t0 := time.Now()
			var ct *diag.Timer
			if logger != nil {
				ct = logger.StartWith("copier", "copy", string(id), name)
			}
			n, err := copier.Copy(gctx, b)
			mu.Lock()
			results = append(results, PartResult{Index: b.Index, Name: name, Bytes: n, Err: err})
			done++
			if err != nil {
				errs++
			}
			if term != nil {
				term.FileProgress(done, dispatched, errs)
			}
			mu.Unlock()
			if logger != nil {
				if err != nil {
					code := diag.Classify(err)
					logger.ErrorWithKV("copier", string(code), "copy failed", &t0, string(id), name, map[string]string{"err": err.Error()})
					diag.IncOp("copier", "error", "error")
					diag.IncError("copier", string(code))
				} else {
					ct.Finish("copy", n)
					diag.IncOp("copier", "finish", "success")
					diag.ObserveDuration("copier", "copy", time.Since(t0).Milliseconds())
				}
			}
			// 分片失败只记录，不取消其他分片
			return nil
		})
		return nil
	})
	// 屏障：无论扫描是否成功，都等待已派发的复制结束
	_ = g.Wait()
	rep.Summary = sum

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	rep.Parts = results
	if term != nil {
		term.FileFinish(scanErr == nil && errs == 0, len(results), time.Since(runStart))
	}

	if scanErr != nil {
		// 扫描失败：已派发分片的结果仍保留在 Report 中
		err := fail("scanner", "scan failed", fmt.Errorf("scan: %w", scanErr))
		return rep, errors.Join(append([]error{err}, partErrors(results)...)...)
	}
	if stimer != nil {
		stimer.Finish("scan", sum.DataLines)
		diag.IncOp("scanner", "finish", "success")
	}
	if sum.DroppedLines > 0 && logger != nil {
		logger.WarnWithKV("scanner", "trailing lines dropped", string(id), map[string]string{
			"dropped_lines": strconv.FormatInt(sum.DroppedLines, 10),
			"dropped_bytes": strconv.FormatInt(sum.DroppedBytes, 10),
		})
	}

	if perrs := partErrors(results); len(perrs) > 0 {
		if logger != nil {
			logger.ErrorWithKV("pipeline", string(diag.Classify(perrs[0])), "parts failed", &runStart, string(id), "", map[string]string{
				"failed": strconv.Itoa(len(perrs)),
				"total":  strconv.Itoa(len(results)),
			})
		}
		return rep, errors.Join(perrs...)
	}
	if ptimer != nil {
		ptimer.Finish("split", int64(len(results)))
		diag.ObserveDuration("pipeline", "split", time.Since(runStart).Milliseconds())
	}
	return rep, nil
}

func partErrors(results []PartResult) []error {
	var out []error
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Err)
		}
	}
	return out
}

func concurrency(set Settings) int {
	if set.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return set.Concurrency
}

func sanity(comp Components, set Settings) error {
	if comp.Source == nil || comp.Scanner == nil || comp.Writer == nil {
		return fmt.Errorf("%w: missing component", contract.ErrInvalidInput)
	}
	if set.Input == "" || set.OutputDir == "" {
		return fmt.Errorf("%w: input and output dir are required", contract.ErrInvalidInput)
	}
	if set.FileLines <= 0 {
		return fmt.Errorf("%w: file_lines must be > 0", contract.ErrInvalidInput)
	}
	if set.Header < 0 {
		return fmt.Errorf("%w: header must be >= 0", contract.ErrInvalidInput)
	}
	return nil
}
