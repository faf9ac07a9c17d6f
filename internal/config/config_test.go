package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 10*time.Second, cfg.GatherTimeout)
	require.Equal(t, time.Second, cfg.Recorder.Timeslice)
	require.Equal(t, "video.webm", cfg.Recorder.Filename)
	require.True(t, cfg.Media.Loop)
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
	require.Empty(t, cfg.Connection().ICEServers)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(`
mode: debug
port: 9000
log_level: debug
gather_timeout: 3s
ice_servers:
  - urls: ["turn:turn.example.org:3478"]
    username: user
    credential: secret
  - urls: []
media:
  video_file: in.ivf
recorder:
  timeslice: 250ms
`), 0o600))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("RECORDER_MEDIA_AUDIO_FILE", "in.ogg")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.Bool("stdin", false, "")
	require.NoError(t, flags.Parse([]string{"--port=9100", "--stdin"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Mode)
	require.Equal(t, 9100, cfg.Port)
	require.True(t, cfg.Stdin)
	require.Equal(t, 3*time.Second, cfg.GatherTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Recorder.Timeslice)
	require.Equal(t, "in.ivf", cfg.Media.VideoFile)
	require.Equal(t, "in.ogg", cfg.Media.AudioFile)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())

	conn := cfg.Connection()
	require.Len(t, conn.ICEServers, 1)
	require.Equal(t, "user", conn.ICEServers[0].Username)
	require.Equal(t, "secret", conn.ICEServers[0].Credential)
}

func TestLevelFallback(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, (&Config{LogLevel: "loud"}).Level())
	require.Equal(t, zerolog.WarnLevel, (&Config{LogLevel: "WARN"}).Level())
}
