package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydocklabs/drydock/errors"
	"github.com/drydocklabs/drydock/sandbox"
)

func newStreamFixture(t *testing.T) (*Store, *Streamer, *Session) {
	t.Helper()
	store := newTestStore(t)
	sess, err := store.CreateSession(LaunchConfig{
		RepoURL: "https://github.com/acme/widgets",
		Command: "agent",
	})
	require.NoError(t, err)
	return store, NewStreamer(store), sess
}

func TestStreamerPersistsLinesWithStreamLevels(t *testing.T) {
	store, streamer, sess := newStreamFixture(t)

	cmd := &sandbox.FakeCommand{Chunks: []sandbox.LogChunk{
		{Stream: sandbox.StreamStdout, Data: "cloning repository\nrunning agent\n"},
		{Stream: sandbox.StreamStderr, Data: "warn: shallow clone\n"},
	}}

	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "acme/widgets")

	entries, err := store.ListLogs(sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, LogLevelStdout, entries[0].Level)
	assert.Equal(t, "cloning repository", entries[0].Message)
	assert.Equal(t, LogLevelStderr, entries[2].Level)
	assert.Equal(t, "warn: shallow clone", entries[2].Message)
}

func TestStreamerReassemblesPartialLines(t *testing.T) {
	store, streamer, sess := newStreamFixture(t)

	// A line split across chunks must be persisted as one entry, and
	// interleaved stderr chunks must not corrupt the stdout carry.
	cmd := &sandbox.FakeCommand{Chunks: []sandbox.LogChunk{
		{Stream: sandbox.StreamStdout, Data: "opened https://github.com/ac"},
		{Stream: sandbox.StreamStderr, Data: "noise\n"},
		{Stream: sandbox.StreamStdout, Data: "me/widgets/pull/42\n"},
	}}

	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "acme/widgets")

	entries, err := store.ListLogs(sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "noise", entries[0].Message)
	assert.Equal(t, "opened https://github.com/acme/widgets/pull/42", entries[1].Message)

	got, err := store.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", got.ResultURL)
}

func TestStreamerFlushesUnterminatedFinalLine(t *testing.T) {
	store, streamer, sess := newStreamFixture(t)

	cmd := &sandbox.FakeCommand{Chunks: []sandbox.LogChunk{
		{Stream: sandbox.StreamStdout, Data: "no trailing newline"},
	}}

	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "")

	entries, err := store.ListLogs(sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "no trailing newline", entries[0].Message)
}

func TestStreamerFirstURLWins(t *testing.T) {
	store, streamer, sess := newStreamFixture(t)

	cmd := &sandbox.FakeCommand{Chunks: []sandbox.LogChunk{
		{Stream: sandbox.StreamStdout, Data: "https://github.com/acme/widgets/pull/1\n"},
		{Stream: sandbox.StreamStdout, Data: "https://github.com/acme/widgets/pull/2\n"},
	}}

	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "acme/widgets")

	got, err := store.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/1", got.ResultURL)
}

func TestStreamerMismatchedSlugStillRecorded(t *testing.T) {
	store, streamer, sess := newStreamFixture(t)

	// The slug check is advisory only.
	cmd := &sandbox.FakeCommand{Chunks: []sandbox.LogChunk{
		{Stream: sandbox.StreamStdout, Data: "https://github.com/other/repo/pull/9\n"},
	}}

	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "acme/widgets")

	got, err := store.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/other/repo/pull/9", got.ResultURL)
}

func TestStreamerAbsorbsStreamErrors(t *testing.T) {
	store, streamer, sess := newStreamFixture(t)

	cmd := &sandbox.FakeCommand{
		Chunks:    []sandbox.LogChunk{{Stream: sandbox.StreamStdout, Data: "partial output\n"}},
		StreamErr: errors.New("connection reset"),
	}

	// Must not panic or propagate; lines seen before the error are kept.
	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "")

	entries, err := store.ListLogs(sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "partial output", entries[0].Message)
}

func TestStreamerAbsorbsLogsOpenError(t *testing.T) {
	_, streamer, sess := newStreamFixture(t)

	cmd := &sandbox.FakeCommand{LogsErr: errors.New("command vanished")}
	streamer.StreamAndDetect(context.Background(), sess.ID, cmd, "")
}
