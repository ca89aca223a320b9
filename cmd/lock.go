package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/surge-downloader/ferry/internal/config"
)

// InstanceLock wraps the file locking mechanism
type InstanceLock struct {
	flock *flock.Flock
	path  string
}

var instanceLock *InstanceLock

func lockPath() string {
	return filepath.Join(config.GetFerryDir(), "ferry.lock")
}

// AcquireLock attempts to take the single-server lock.
// It returns false without error when another server holds it.
func AcquireLock() (bool, error) {
	if err := config.EnsureDirs(); err != nil {
		return false, fmt.Errorf("failed to ensure config dirs: %w", err)
	}

	fileLock := flock.New(lockPath())
	locked, err := fileLock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	if !locked {
		return false, nil
	}

	instanceLock = &InstanceLock{flock: fileLock, path: lockPath()}
	return true, nil
}

// ReleaseLock releases the lock if it is held by this process
func ReleaseLock() error {
	if instanceLock == nil || instanceLock.flock == nil {
		return nil
	}
	err := instanceLock.flock.Unlock()
	instanceLock = nil
	return err
}
