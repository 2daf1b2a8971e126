package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/emvtap/internal/config"
	"github.com/danmuck/emvtap/internal/emv"
	"github.com/danmuck/emvtap/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoScript(t *testing.T) *Script {
	t.Helper()
	tmpl, err := config.Template(config.KindScript)
	require.NoError(t, err)
	s, err := ParseScript(tmpl, testlog.Logger(t))
	require.NoError(t, err)
	return s
}

func TestScriptTapLifecycle(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	s := demoScript(t)

	_, err := s.Exchange(ctx, []byte{0x00, 0xB2, 0x01, 0x1C, 0x00})
	assert.ErrorIs(t, err, ErrNoCard)

	present, err := s.DetectTarget(ctx)
	require.NoError(t, err)
	assert.True(t, present)

	// Still present until spoken to.
	present, err = s.DetectTarget(ctx)
	require.NoError(t, err)
	assert.True(t, present)

	resp, err := s.Exchange(ctx, []byte{0x00, 0xB2, 0x01, 0x1C, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp[len(resp)-2:])

	present, err = s.DetectTarget(ctx)
	require.NoError(t, err)
	assert.False(t, present)

	// One tap only.
	present, err = s.DetectTarget(ctx)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestScriptUnknownCommand(t *testing.T) {
	ctx := context.Background()
	s := demoScript(t)
	_, err := s.DetectTarget(ctx)
	require.NoError(t, err)

	resp, err := s.Exchange(ctx, []byte{0x80, 0xCA, 0x9F, 0x17, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6D, 0x00}, resp)
}

func TestScriptWildcardAndCopy(t *testing.T) {
	ctx := context.Background()
	s, err := ParseScript(`
[[exchange]]
command = "80A8*"
response = "6985"
`, testlog.Logger(t))
	require.NoError(t, err)
	_, err = s.DetectTarget(ctx)
	require.NoError(t, err)

	resp, err := s.Exchange(ctx, []byte{0x80, 0xA8, 0x00, 0x00, 0x02, 0x83, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x69, 0x85}, resp)
	resp[0] = 0x00
	again, err := s.Exchange(ctx, []byte{0x80, 0xA8, 0x00, 0x00, 0x02, 0x83, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x69, 0x85}, again)
}

func TestScriptRejects(t *testing.T) {
	_, err := ParseScript("present = true\n", testlog.Logger(t))
	assert.ErrorIs(t, err, ErrEmptyScript)

	_, err = ParseScript("[[exchange]]\ncommand = \"0G\"\nresponse = \"9000\"\n", testlog.Logger(t))
	assert.Error(t, err)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.toml"), testlog.Logger(t))
	assert.Error(t, err)
}

func TestScriptNotPresent(t *testing.T) {
	s, err := ParseScript("present = false\n[[exchange]]\ncommand = \"00\"\nresponse = \"9000\"\n", testlog.Logger(t))
	require.NoError(t, err)
	present, err := s.DetectTarget(context.Background())
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, s.Close())
	_, err = s.DetectTarget(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClosedScriptStopsLoop(t *testing.T) {
	testlog.Start(t)
	s, err := ParseScript("present = false\n[[exchange]]\ncommand = \"00\"\nresponse = \"9000\"\n", testlog.Logger(t))
	require.NoError(t, err)
	loop := emv.NewLoop(emv.NewReader(s, emv.DefaultTerminalData()), emv.LoopConfig{PollInterval: time.Millisecond}, testlog.Logger(t))

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, err, emv.ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after close")
	}
}

func TestScriptDrivesFullCycle(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "card.toml")
	require.NoError(t, config.WriteTemplate(path, config.KindScript, false))
	_, err := os.Stat(path)
	require.NoError(t, err)

	drv, err := Open(config.ReaderConfig{Driver: config.DriverScript, Script: path}, testlog.Logger(t))
	require.NoError(t, err)
	defer drv.Close()

	ctx := context.Background()
	present, err := drv.DetectTarget(ctx)
	require.NoError(t, err)
	require.True(t, present)

	reader := emv.NewReader(drv, emv.DefaultTerminalData(), emv.WithLogger(testlog.Logger(t)))
	out := reader.RunCycle(ctx)

	require.True(t, out.Success(), "cycle error: %v", out.Err)
	assert.Equal(t, "A0000000031010", out.Candidate.AIDHex())
	assert.Equal(t, "VISA", out.Candidate.Label)
	require.Len(t, out.Records, 1)
	assert.True(t, out.Records[0].OK())
	assert.Equal(t, uint8(3), out.Records[0].SFI)
}

func TestPickReader(t *testing.T) {
	readers := []string{"Generic Smart Card 00", "ACS ACR122U PICC Interface 01"}
	r, err := pickReader(readers, "acr122")
	require.NoError(t, err)
	assert.Equal(t, readers[1], r)

	r, err = pickReader(readers, "")
	require.NoError(t, err)
	assert.Equal(t, readers[0], r)

	_, err = pickReader(readers, "omnikey")
	assert.ErrorIs(t, err, ErrNoReader)
	_, err = pickReader(nil, "")
	assert.ErrorIs(t, err, ErrNoReader)
}
