package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydocklabs/drydock/sandbox"
)

func TestPrepareTaskFileDefaultPath(t *testing.T) {
	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	path, err := preparer.PrepareTaskFile(context.Background(), env, LaunchConfig{
		Task: "fix the flaky test",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultTaskPath, path)
	assert.Equal(t, []byte("fix the flaky test"), env.Files[DefaultTaskPath])
}

func TestPrepareTaskFileCustomPath(t *testing.T) {
	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	path, err := preparer.PrepareTaskFile(context.Background(), env, LaunchConfig{
		Task:     "do the thing",
		TaskPath: "/srv/notes/task.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "/srv/notes/task.txt", path)
	assert.Equal(t, []byte("do the thing"), env.Files["/srv/notes/task.txt"])
}

func TestPrepareTaskFileNoTask(t *testing.T) {
	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	path, err := preparer.PrepareTaskFile(context.Background(), env, LaunchConfig{})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, env.Files)
}

func TestPrepareSetupScriptFromLocalPath(t *testing.T) {
	src := filepath.Join(t.TempDir(), "setup.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\napt-get install -y jq\n"), 0644))

	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	path, err := preparer.PrepareSetupScript(context.Background(), env, src)
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.Equal(t, []byte("#!/bin/sh\napt-get install -y jq\n"), env.Files[path])
	assert.Equal(t, uint32(0755), env.Modes[path])
}

func TestPrepareSetupScriptFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#!/bin/sh\necho ready\n"))
	}))
	defer srv.Close()

	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	path, err := preparer.PrepareSetupScript(context.Background(), env, srv.URL+"/setup.sh")
	require.NoError(t, err)
	assert.Equal(t, []byte("#!/bin/sh\necho ready\n"), env.Files[path])
}

func TestPrepareSetupScriptNoURL(t *testing.T) {
	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	path, err := preparer.PrepareSetupScript(context.Background(), env, "")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, env.Files)
}

func TestPrepareSetupScriptDownloadFailure(t *testing.T) {
	env := sandbox.NewFakeEnvironment("env-1")
	preparer := NewPreparer()

	_, err := preparer.PrepareSetupScript(context.Background(), env, filepath.Join(t.TempDir(), "missing.sh"))
	require.Error(t, err)
	assert.Empty(t, env.Files)
}
