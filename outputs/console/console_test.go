package console

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundy-li/offsetmon/model"
	"github.com/sundy-li/offsetmon/protocol"
)

type capture struct {
	mu    sync.Mutex
	lines []string
}

func (c *capture) printf(format string, params ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, params...))
}

func groupInfo() *protocol.GroupInfo {
	return &protocol.GroupInfo{
		Group: "billing",
		Offsets: []model.OffsetRecord{
			{Group: "billing", Topic: "orders", Partition: 0, CommittedOffset: 1000, LogEndOffset: 1235000, Owner: "c-1"},
			{Group: "billing", Topic: "orders", Partition: 1, CommittedOffset: 10, LogEndOffset: 12},
			{Group: "billing", Topic: "orders", Partition: 2, CommittedOffset: 15, LogEndOffset: 12},
		},
	}
}

func TestConsolePrintsEveryPartition(t *testing.T) {
	out, err := New(context.Background(), nil)
	require.NoError(t, err)
	c := &capture{}
	out.printf = c.printf

	require.NoError(t, out.Start())
	out.SaveMessage(groupInfo())
	require.NoError(t, out.Stop())

	require.Len(t, c.lines, 3)
	assert.Equal(t, "group=billing topic=orders partition=0 offset=1000 logsize=1235000 lag=1,234,000 owner=c-1", c.lines[0])
	assert.Contains(t, c.lines[2], "lag=-3")
}

func TestConsoleMinLag(t *testing.T) {
	out, err := New(context.Background(), []byte(`{"minLag": 100}`))
	require.NoError(t, err)
	c := &capture{}
	out.printf = c.printf

	require.NoError(t, out.Start())
	out.SaveMessage(groupInfo())
	require.NoError(t, out.Stop())

	require.Len(t, c.lines, 1)
	assert.Contains(t, c.lines[0], "partition=0")
}

func TestConsoleBadConfig(t *testing.T) {
	_, err := New(context.Background(), []byte(`{"minLag": "lots"}`))
	assert.Error(t, err)
}

func TestConsoleDropsWhenFull(t *testing.T) {
	out, err := New(context.Background(), nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(out.msgs)+5; i++ {
			out.SaveMessage(groupInfo())
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SaveMessage blocked on a full buffer")
	}
	assert.Equal(t, int64(5), out.dropped.Load())
	assert.Len(t, out.msgs, cap(out.msgs))
}
