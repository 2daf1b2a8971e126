package emv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/emvtap/internal/emv/mocks"
	"github.com/danmuck/emvtap/internal/protocol/apdu"
	"github.com/danmuck/emvtap/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func fastLoopConfig() LoopConfig {
	return LoopConfig{
		PollInterval: time.Millisecond,
		Backoff:      BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 4 * time.Millisecond},
	}
}

func TestLoopOnceRunsOneCycleAfterDetection(t *testing.T) {
	testlog.Start(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	gomock.InOrder(
		transport.EXPECT().DetectTarget(gomock.Any()).Return(false, nil),
		transport.EXPECT().DetectTarget(gomock.Any()).Return(false, errors.New("reader unavailable")),
		transport.EXPECT().DetectTarget(gomock.Any()).Return(true, nil),
		transport.EXPECT().Exchange(gomock.Any(), mustEncode(apdu.SelectPPSE())).Return([]byte{0x6A, 0x82}, nil),
	)

	cfg := fastLoopConfig()
	cfg.Once = true
	reader := NewReader(transport, DefaultTerminalData(), WithLogger(testlog.Logger(t)))
	loop := NewLoop(reader, cfg, testlog.Logger(t))
	var outcomes []Outcome
	loop.OnOutcome(func(o Outcome) { outcomes = append(outcomes, o) })

	err := loop.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, apdu.ErrStatus)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StateFailed, outcomes[0].State)
}

func TestLoopWaitsForRemovalBetweenCycles(t *testing.T) {
	testlog.Start(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		transport.EXPECT().DetectTarget(gomock.Any()).Return(true, nil),
		transport.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return([]byte{0x6A, 0x82}, nil),
		transport.EXPECT().DetectTarget(gomock.Any()).Return(true, nil).Times(2),
		transport.EXPECT().DetectTarget(gomock.Any()).Return(false, nil),
		transport.EXPECT().DetectTarget(gomock.Any()).Return(true, nil),
		transport.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return([]byte{0x6A, 0x82}, nil),
		transport.EXPECT().DetectTarget(gomock.Any()).DoAndReturn(func(context.Context) (bool, error) {
			cancel()
			return true, nil
		}),
	)

	reader := NewReader(transport, DefaultTerminalData(), WithLogger(testlog.Logger(t)))
	loop := NewLoop(reader, fastLoopConfig(), testlog.Logger(t))
	cycles := 0
	loop.OnOutcome(func(Outcome) { cycles++ })

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, 2, cycles)
}

func TestLoopStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().DetectTarget(gomock.Any()).Return(false, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	loop := NewLoop(NewReader(transport, DefaultTerminalData()), fastLoopConfig(), testlog.Logger(t))

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopStopsWhenTransportClosed(t *testing.T) {
	testlog.Start(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	closed := fmt.Errorf("reader: %w", ErrTransportClosed)
	gomock.InOrder(
		transport.EXPECT().DetectTarget(gomock.Any()).Return(false, errors.New("reader busy")),
		transport.EXPECT().DetectTarget(gomock.Any()).Return(false, closed).Times(1),
	)

	loop := NewLoop(NewReader(transport, DefaultTerminalData()), fastLoopConfig(), testlog.Logger(t))
	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept polling a closed transport")
	}
}
