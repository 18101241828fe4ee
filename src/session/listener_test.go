package session

import (
	"errors"
	"testing"
	"time"

	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(update models.MItemUpdate, _ []string) (string, error) {
	v, ok := update.Snapshot["V"]
	if !ok {
		return "", errors.New("no V")
	}
	return v, nil
}

func value(v string) models.MItemUpdate {
	return models.MItemUpdate{Snapshot: models.MFieldSnapshot{"V": v}}
}

func drain(l *TypedListener[string]) []string {
	var out []string
	for v := range l.Events() {
		out = append(out, v)
	}
	return out
}

func TestListenerOverflowPolicies(t *testing.T) {
	tests := []struct {
		policy models.MOverflowPolicy
		check  func(t *testing.T, got []string)
	}{
		{models.OverflowDropOldest, func(t *testing.T, got []string) {
			assert.Equal(t, "d", got[len(got)-1])
			assert.NotContains(t, got, "b")
		}},
		{models.OverflowDropNewest, func(t *testing.T, got []string) {
			assert.Equal(t, "a", got[0])
			assert.NotContains(t, got, "d")
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			l := NewListener[string]("l", echo, nil, ListenerOptions{BufferSize: 2, Overflow: tt.policy}, logger.NewNopLogger())
			for _, v := range []string{"a", "b", "c", "d"} {
				l.Deliver(value(v))
			}
			l.Finish(nil)

			// the pump may hold one value outside the queue
			got := drain(l)
			require.GreaterOrEqual(t, len(got), 2)
			require.LessOrEqual(t, len(got), 3)
			tt.check(t, got)
			assert.Equal(t, uint64(4-len(got)), l.Dropped())
		})
	}
}

func TestListenerDropsDecodeFailures(t *testing.T) {
	l := NewListener[string]("l", echo, nil, ListenerOptions{BufferSize: 4}, logger.NewNopLogger())
	l.Deliver(models.MItemUpdate{Snapshot: models.MFieldSnapshot{}})
	l.Deliver(value("ok"))
	l.Finish(nil)

	assert.Equal(t, []string{"ok"}, drain(l))
	assert.NoError(t, l.Err())
}

func TestListenerFinishWithError(t *testing.T) {
	l := NewListener[string]("l", echo, nil, ListenerOptions{}, logger.NewNopLogger())
	boom := errors.New("boom")
	l.Finish(boom)
	l.Finish(nil)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("not done")
	}
	assert.ErrorIs(t, l.Err(), boom)
}

func TestListenerStopDiscardsQueue(t *testing.T) {
	l := NewListener[string]("l", echo, nil, ListenerOptions{BufferSize: 8}, logger.NewNopLogger())
	l.Deliver(value("a"))
	l.Deliver(value("b"))
	l.Stop()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("not done")
	}
	l.Deliver(value("c"))
	_, open := <-l.Events()
	require.False(t, open)
	assert.NoError(t, l.Err())
}
