package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestStream_CleanTurnAnyChunkSize(t *testing.T) {
	for _, size := range []int{1, 3, 7, 64, DefaultChunkSize} {
		evs, outcome := Collect(context.Background(), strings.NewReader(cleanTurn), WithChunkSize(size))
		assert.Equal(t, OutcomeCompleted, outcome, "chunk size %d", size)
		assert.Equal(t, []Kind{KindContentDelta, KindContentDelta, KindStreamEnd}, kinds(evs), "chunk size %d", size)
	}
}

func TestStream_EOFWithoutDone(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}"

	evs, outcome := Collect(context.Background(), strings.NewReader(input))
	assert.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, []Kind{KindContentDelta, KindContentDelta, KindStreamEnd}, kinds(evs))
	assert.Equal(t, "b", evs[1].Text)
	assert.Equal(t, EndReasonEOF, evs[2].Reason)
}

func TestStream_VendorError(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
		"data: {\"error\":{\"message\":\"rate limited\",\"code\":429}}\n"

	evs, outcome := Collect(context.Background(), strings.NewReader(input))
	assert.Equal(t, OutcomeFailed, outcome)
	require.Len(t, evs, 2)
	assert.Equal(t, "429", evs[1].Code)
}

func TestStream_Cancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := Stream(ctx, pr)

	go func() {
		_, _ = pw.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n"))
	}()

	first := next(t, ch)
	assert.Equal(t, KindContentDelta, first.Kind)

	cancel()

	ev := next(t, ch)
	assert.Equal(t, KindCancelled, ev.Kind)
	outcome, ok := OutcomeOf(ev)
	assert.True(t, ok)
	assert.Equal(t, OutcomeCancelled, outcome)
	assertClosed(t, ch)
}

func TestStream_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evs, outcome := Collect(ctx, strings.NewReader(cleanTurn))
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Equal(t, []Kind{KindCancelled}, kinds(evs))
}

func TestStream_TransportError(t *testing.T) {
	pr, pw := io.Pipe()
	ch := Stream(context.Background(), pr)

	go func() {
		_, _ = pw.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n"))
		pw.CloseWithError(errors.New("connection reset"))
	}()

	assert.Equal(t, KindContentDelta, next(t, ch).Kind)
	ev := next(t, ch)
	require.Equal(t, KindTransportError, ev.Kind)
	assert.EqualError(t, ev.Err, "connection reset")
	assertClosed(t, ch)
}

func TestStream_ProcessingHeartbeat(t *testing.T) {
	input := ": OPENROUTER PROCESSING\n\n" + cleanTurn
	evs, _ := Collect(context.Background(), strings.NewReader(input), WithChunkSize(5))
	require.NotEmpty(t, evs)
	assert.Equal(t, KindProcessing, evs[0].Kind)
}

// endlessDeltas 不断返回内容增量，永不结束
type endlessDeltas struct{}

func (endlessDeltas) Read(p []byte) (int, error) {
	return copy(p, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"), nil
}

func TestStream_AbandonedConsumerReleasedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Stream(ctx, endlessDeltas{})

	// 不读取，等缓冲填满后取消
	require.Eventually(t, func() bool { return len(ch) == cap(ch) }, 2*time.Second, 5*time.Millisecond)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream goroutine still running after cancel")
		}
	}
}
