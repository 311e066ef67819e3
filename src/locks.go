package src

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// InstallLockName is the lock directory created next to the scripts.
const InstallLockName = ".install.lock"

const (
	lockPoll  = 120 * time.Millisecond
	lockStale = 10 * time.Minute
)

// lockWaitHook is called on every poll while another process holds the lock.
type lockWaitHook func(waited time.Duration)

// acquireDirLock takes a cross-process lock by creating the directory path.
// A lock older than lockStale is assumed abandoned and removed. The returned
// func releases the lock.
func acquireDirLock(ctx context.Context, path string, hook lockWaitHook) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	start := time.Now()
	for {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			owner := fmt.Sprintf("pid=%d\nacquired=%s\n", os.Getpid(), time.Now().Format(time.RFC3339Nano))
			_ = os.WriteFile(filepath.Join(path, "owner"), []byte(owner), 0o644)
			return func() error { return os.RemoveAll(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > lockStale {
			_ = os.RemoveAll(path)
			continue
		}

		if hook != nil {
			hook(time.Since(start))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

// withInstallLock runs fn while holding the package install lock, when one
// is configured, so installs from different processes never overlap.
func (p *Pipeline) withInstallLock(ctx context.Context, fn func() error) error {
	if p.installLock == "" {
		return fn()
	}
	warned := false
	release, err := acquireDirLock(ctx, p.installLock, func(waited time.Duration) {
		if warned || waited < 500*time.Millisecond {
			return
		}
		warned = true
		p.logger.Warn("waiting for package install lock", "lock", p.installLock)
	})
	if err != nil {
		return fmt.Errorf("install lock: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			p.logger.Warn("release install lock", "err", err)
		}
	}()
	return fn()
}
