package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autostream/agent/backend/internal/service/agent"
)

type scriptedRunner struct {
	replies  map[string]string
	seen     []string
	deadline bool
}

func (s *scriptedRunner) AdvanceTurn(ctx context.Context, sessionID, text string) (agent.Turn, error) {
	s.seen = append(s.seen, sessionID+":"+text)
	_, s.deadline = ctx.Deadline()
	reply, ok := s.replies[text]
	if !ok {
		return agent.Turn{}, errors.New("reasoning model unavailable")
	}
	return agent.Turn{SessionID: sessionID, Reply: reply}, nil
}

func TestChatLoop(t *testing.T) {
	runner := &scriptedRunner{replies: map[string]string{"hello": agent.GreetingText}}
	in := strings.NewReader("hello\n\nwhat is pro?\nquit\nnever read\n")
	var out bytes.Buffer

	err := chatLoop(context.Background(), runner, "cli-1", time.Second, in, &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Session: cli-1")
	assert.Contains(t, got, "You: Agent: "+agent.GreetingText)
	assert.Contains(t, got, "Error: reasoning model unavailable")
	assert.Contains(t, got, "Goodbye!")
	assert.Equal(t, []string{"cli-1:hello", "cli-1:what is pro?"}, runner.seen)
	assert.True(t, runner.deadline, "turns run with a timeout")
}

func TestChatLoopStopsAtEOF(t *testing.T) {
	runner := &scriptedRunner{replies: map[string]string{"hi": "hey"}}
	var out bytes.Buffer

	err := chatLoop(context.Background(), runner, "cli-2", time.Second, strings.NewReader("hi"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Agent: hey")
	assert.Len(t, runner.seen, 1)
}

func TestCLIFlags(t *testing.T) {
	cliApp := newCLIApp(strings.NewReader(""), &bytes.Buffer{})
	names := map[string]bool{}
	for _, f := range cliApp.Flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}
	for _, want := range []string{"session", "timeout", "log-file", "verbose"} {
		assert.True(t, names[want], "missing flag %s", want)
	}
}
