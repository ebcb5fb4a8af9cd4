package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Player plays a clip. Implementations must be safe for concurrent use since replies arriving while a clip is
// still playing start another independent playback.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// CommandPlayer pipes every clip into the standard input of an external program, for example
// "ffplay -nodisp -autoexit -loglevel quiet -".
type CommandPlayer struct {
	name string
	args []string
}

// NewCommandPlayer creates a player that runs name with args for every clip.
func NewCommandPlayer(name string, args ...string) CommandPlayer {
	return CommandPlayer{name: name, args: args}
}

// Play runs the command and waits for it to exit. Cancelling ctx kills the command.
func (p CommandPlayer) Play(ctx context.Context, clip Clip) error {
	data, err := clip.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode clip: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Stdin = bytes.NewReader(data)
	// Children of the player may keep its output open after it is killed.
	cmd.WaitDelay = time.Second
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("player %s failed: %w: %s", p.name, err, bytes.TrimSpace(out))
	}
	return nil
}

// FilePlayer "plays" clips by writing each one into a directory, one file per clip.
type FilePlayer struct {
	dir string
	seq *atomic.Uint64
}

// NewFilePlayer creates the directory if needed and returns a player writing into it.
func NewFilePlayer(dir string) (FilePlayer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return FilePlayer{}, fmt.Errorf("error creating clip directory: %w", err)
	}
	return FilePlayer{dir: dir, seq: &atomic.Uint64{}}, nil
}

// Play writes the clip and returns the error of the write, if any.
func (p FilePlayer) Play(ctx context.Context, clip Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := clip.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode clip: %w", err)
	}

	ext := FormatWAV
	if clip.Encoded != nil {
		ext = clip.Format
	}
	name := fmt.Sprintf("%s-%03d.%s", time.Now().Format("20060102-150405"), p.seq.Add(1), ext)
	if err := os.WriteFile(filepath.Join(p.dir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write clip: %w", err)
	}
	return nil
}
