package session

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/drydocklabs/drydock/errors"
	"github.com/drydocklabs/drydock/logger"
	"github.com/drydocklabs/drydock/sandbox"
)

const (
	// DefaultTaskPath is where the inline task text lands inside the
	// environment when the launch config does not name a path.
	DefaultTaskPath = "/workspace/TASK.md"

	// setupScriptPath is where a downloaded setup script is written inside
	// the environment.
	setupScriptPath = "/workspace/.drydock-setup.sh"
)

// Preparer stages files inside a provisioned environment before the agent
// command runs: the inline task text and an optional setup script fetched
// from a URL.
type Preparer struct {
	log *zap.SugaredLogger
}

func NewPreparer() *Preparer {
	return &Preparer{log: logger.Named("preparer")}
}

// PrepareTaskFile writes the launch config's inline task text into the
// environment and returns the path it was written to. Returns "" when the
// config carries no task.
func (p *Preparer) PrepareTaskFile(ctx context.Context, env sandbox.Environment, cfg LaunchConfig) (string, error) {
	if cfg.Task == "" {
		return "", nil
	}

	path := cfg.TaskPath
	if path == "" {
		path = DefaultTaskPath
	}

	err := env.WriteFiles(ctx, []sandbox.File{{
		Path:    path,
		Content: []byte(cfg.Task),
		Mode:    0644,
	}})
	if err != nil {
		return "", errors.Wrap(err, "failed to write task file")
	}

	p.log.Debugw("task file written", logger.FieldPath, path, logger.FieldCount, len(cfg.Task))
	return path, nil
}

// PrepareSetupScript downloads the setup script from scriptURL, writes it
// into the environment executable, and returns the in-environment path.
// Returns "" when scriptURL is empty. go-getter handles the fetch, so the
// URL may use any of its supported schemes (https, s3, git, local paths).
func (p *Preparer) PrepareSetupScript(ctx context.Context, env sandbox.Environment, scriptURL string) (string, error) {
	if scriptURL == "" {
		return "", nil
	}

	dir, err := os.MkdirTemp("", "drydock-setup-")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "setup.sh")
	client := &getter.Client{
		Ctx:  ctx,
		Src:  scriptURL,
		Dst:  dst,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return "", errors.Wrapf(err, "failed to download setup script from %s", scriptURL)
	}

	content, err := os.ReadFile(dst)
	if err != nil {
		return "", errors.Wrap(err, "failed to read downloaded setup script")
	}

	err = env.WriteFiles(ctx, []sandbox.File{{
		Path:    setupScriptPath,
		Content: content,
		Mode:    0755,
	}})
	if err != nil {
		return "", errors.Wrap(err, "failed to write setup script")
	}

	p.log.Debugw("setup script staged",
		"source", scriptURL,
		logger.FieldPath, setupScriptPath,
		logger.FieldCount, len(content))
	return setupScriptPath, nil
}
