//go:build !windows

package filesystem

import (
	"os"
)

// osPublish 以硬链接发布临时文件：目标已存在时 link 失败（EEXIST），不会覆盖。
func osPublish(tmpPath, dest string) error {
	if err := os.Link(tmpPath, dest); err != nil {
		return err
	}
	return os.Remove(tmpPath)
}

// syncDir best-effort fsync parent directory to persist metadata.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
