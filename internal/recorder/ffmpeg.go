package recorder

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// FFmpegBackend captures microphone audio through an ffmpeg child process.
// It satisfies Backend; the controller enforces the single-session rule, so
// at most one process runs at a time.
type FFmpegBackend struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	device string
	input  string
}

// NewFFmpegBackend builds a backend reading from the given libavdevice input
// (e.g. "pulse"/"default" on Linux, "avfoundation"/":default" on macOS).
func NewFFmpegBackend(device, input string) *FFmpegBackend {
	return &FFmpegBackend{device: device, input: input}
}

func (b *FFmpegBackend) CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}

func (b *FFmpegBackend) Start(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		return fmt.Errorf("ffmpeg already running")
	}

	cmd := exec.Command("ffmpeg",
		"-f", b.device,
		"-i", b.input,
		"-ac", "1",
		"-c:a", "aac",
		"-y",
		path,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	b.cmd = cmd
	return nil
}

// Stop interrupts ffmpeg so it finalizes the container, then waits for it to
// exit. Duration is reported as unknown; the controller's elapsed counter is
// the fallback.
func (b *FFmpegBackend) Stop(ctx context.Context) (int, error) {
	b.mu.Lock()
	cmd := b.cmd
	b.cmd = nil
	b.mu.Unlock()

	if cmd == nil {
		return 0, fmt.Errorf("ffmpeg is not running")
	}

	if err := cmd.Process.Signal(interruptSignal); err != nil {
		_ = cmd.Process.Kill()
	}

	// ffmpeg exits non-zero on SIGINT even after writing a valid file; the
	// materialized file is what matters.
	_ = cmd.Wait()
	return 0, nil
}
