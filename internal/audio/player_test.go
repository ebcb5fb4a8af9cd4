package audio_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/MegaGrindStone/talkback/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandPlayerPipesClip(t *testing.T) {
	requireShell(t)

	out := filepath.Join(t.TempDir(), "played.wav")
	p := audio.NewCommandPlayer("sh", "-c", `cat > "$0"`, out)

	clip := audio.Clip{Format: audio.FormatPCM, SampleRate: 16000, Channels: 1, PCM: samplePCM(16)}
	require.NoError(t, p.Play(context.Background(), clip))

	want, err := clip.Bytes()
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	parsed, err := audio.ParseWAV(got)
	require.NoError(t, err)
	assert.Equal(t, clip.PCM, parsed.PCM)
}

func TestCommandPlayerPipesOpaqueClip(t *testing.T) {
	requireShell(t)

	out := filepath.Join(t.TempDir(), "played.mp3")
	p := audio.NewCommandPlayer("sh", "-c", `cat > "$0"`, out)

	require.NoError(t, p.Play(context.Background(), audio.Clip{Format: audio.FormatMP3, Encoded: []byte("ID3data")}))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3data"), got)
}

func TestCommandPlayerReportsFailure(t *testing.T) {
	requireShell(t)

	p := audio.NewCommandPlayer("sh", "-c", "echo no device >&2; exit 3")
	err := p.Play(context.Background(), audio.Clip{Format: audio.FormatMP3, Encoded: []byte{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
}

func TestCommandPlayerHonoursCancel(t *testing.T) {
	requireShell(t)

	p := audio.NewCommandPlayer("sh", "-c", "exec sleep 5")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Play(ctx, audio.Clip{Format: audio.FormatMP3, Encoded: []byte{1}})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}
