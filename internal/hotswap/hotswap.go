// Package hotswap watches a kernel source file and rebuilds it into a
// loadable plugin each time it changes, republishing the freshly
// compiled handle to any interested consumer.
package hotswap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/rocoder-audio/rocoder/internal/kernel"
	"github.com/rocoder-audio/rocoder/internal/refft"
)

// Library is a successfully built and loaded kernel plugin, tagged
// with the source path it came from.
type Library struct {
	SourcePath string
	Kernel     refft.Kernel
}

// Watch starts a background watcher on path and returns a channel that
// yields a Library after the initial build, if that build succeeds,
// and again after every successful rebuild. Build or load failures
// publish nothing, log a warning and leave the watcher running; they
// never close the channel. The channel is never blocked on by the watcher: it is sized
// so a slow or absent consumer cannot stall the build loop, matching
// the contract that consumers poll it non-blockingly.
func Watch(path string) (<-chan Library, error) {
	out := make(chan Library, 4)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hotswap: creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("hotswap: watching %s: %w", filepath.Dir(path), err)
	}

	attemptBuild(path, out)

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					attemptBuild(path, out)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("hotswap watcher error", "err", err)
			}
		}
	}()

	return out, nil
}

func attemptBuild(path string, out chan<- Library) {
	soPath, err := compile(path)
	if err != nil {
		log.Warn("kernel compile failed", "path", path, "err", err)
		return
	}
	k, err := kernel.Load(soPath)
	if err != nil {
		log.Warn("kernel load failed", "path", path, "err", err)
		return
	}
	select {
	case out <- Library{SourcePath: path, Kernel: k}:
	default:
		log.Warn("kernel library channel full, dropping rebuild", "path", path)
	}
}

// compile invokes the Go toolchain as a subprocess to build path into
// a plugin shared object, returning the built artifact's path.
// Windows is unsupported: go build -buildmode=plugin only targets
// ELF/Mach-O dynamic libraries.
func compile(path string) (string, error) {
	tmp, err := os.CreateTemp("", "rocoder-kernel-*.so")
	if err != nil {
		return "", fmt.Errorf("hotswap: creating build target: %w", err)
	}
	soPath := tmp.Name()
	tmp.Close()
	os.Remove(soPath)

	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", soPath, path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("go build failed: %w: %s", err, output)
	}
	return soPath, nil
}
