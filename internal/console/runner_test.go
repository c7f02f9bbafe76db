package console

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispledger/internal/log"
)

type collector struct {
	mu     sync.Mutex
	events []Event
	done   chan Event
}

func newCollector() *collector {
	return &collector{done: make(chan Event, 1)}
}

func (c *collector) sink(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	switch ev.Kind {
	case EventDone, EventKilled, EventError:
		c.done <- ev
	}
}

func (c *collector) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		if ev.Kind == EventOutput {
			out = append(out, ev.Line)
		}
	}
	return out
}

func (c *collector) wait(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-c.done:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("command did not finish")
		return Event{}
	}
}

func testRunner(timeout time.Duration) *Runner {
	return NewRunner(
		WithLogger(log.Nop()),
		WithTimeout(timeout),
		WithCommands(map[string]Command{
			"say":   {Path: "echo"},
			"pause": {Path: "sleep"},
		}))
}

func TestStart_StreamsOutput(t *testing.T) {
	r := testRunner(time.Minute)
	c := newCollector()
	require.NoError(t, r.Start(context.Background(), "a1", "say hello", c.sink))

	ev := c.wait(t)
	assert.Equal(t, EventDone, ev.Kind)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 0, *ev.ExitCode)
	assert.Equal(t, []string{"hello"}, c.lines())
	assert.Equal(t, EventStarted, c.events[0].Kind)
}

func TestKill(t *testing.T) {
	r := testRunner(time.Minute)
	c := newCollector()
	require.NoError(t, r.Start(context.Background(), "k1", "pause 30", c.sink))
	assert.Equal(t, []string{"k1"}, r.Running())

	require.NoError(t, r.Kill("k1"))
	assert.Equal(t, EventKilled, c.wait(t).Kind)
	assert.Eventually(t, func() bool { return len(r.Running()) == 0 }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, r.Kill("k1"), ErrUnknownID)
}

func TestTimeout(t *testing.T) {
	r := testRunner(100 * time.Millisecond)
	c := newCollector()
	require.NoError(t, r.Start(context.Background(), "t1", "pause 30", c.sink))

	ev := c.wait(t)
	assert.Equal(t, EventKilled, ev.Kind)
	assert.Equal(t, "timed out", ev.Message)
}

func TestStart_DuplicateID(t *testing.T) {
	r := testRunner(time.Minute)
	c := newCollector()
	require.NoError(t, r.Start(context.Background(), "d1", "pause 30", c.sink))
	defer r.KillAll()

	assert.ErrorIs(t, r.Start(context.Background(), "d1", "say hi", newCollector().sink), ErrDuplicateID)
}

func TestParse_Rejects(t *testing.T) {
	r := testRunner(time.Minute)
	_, _, err := r.Parse("rm -rf /")
	assert.ErrorIs(t, err, ErrNotAllowed)
	_, _, err = r.Parse("")
	assert.ErrorIs(t, err, ErrNotAllowed)
	_, _, err = r.Parse("say $(whoami)")
	assert.ErrorIs(t, err, ErrInvalidArg)
	_, _, err = r.Parse("say a;b")
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestUnixPingArgs(t *testing.T) {
	assert.Equal(t, []string{"-c", "4", "8.8.8.8"}, unixPingArgs(nil))
	assert.Equal(t, []string{"1.1.1.1"}, unixPingArgs([]string{"-t", "1.1.1.1"}))
	assert.Equal(t, []string{"-c", "4", "example.com"}, unixPingArgs([]string{"example.com"}))
}

func TestCommandsFor(t *testing.T) {
	win := commandsFor("windows")
	assert.Equal(t, "tracert", win["tracert"].Path)
	_, ok := win["traceroute"]
	assert.False(t, ok)

	linux := commandsFor("linux")
	assert.Equal(t, "traceroute", linux["tracert"].Path)
	assert.Equal(t, []string{"addr"}, linux["ipconfig"].Args(nil))
}
