package session

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/drydocklabs/drydock/logger"
	"github.com/drydocklabs/drydock/sandbox"
)

// Streamer consumes a command's output stream, persists it line by line, and
// scans for the completion signal. One Streamer per manager; each call to
// StreamAndDetect handles one command.
type Streamer struct {
	store *Store
	log   *zap.SugaredLogger
}

// NewStreamer creates a streamer backed by the given store.
func NewStreamer(store *Store) *Streamer {
	return &Streamer{
		store: store,
		log:   logger.Named("streamer"),
	}
}

// StreamAndDetect drains cmd's log stream, persisting each complete line with
// a level derived from its stream, and records the first pull-request URL
// seen as the session's result. Detection happens at most once per call; the
// store additionally enforces at-most-once across calls.
//
// The slug check is advisory: a URL for an unexpected repository is logged
// and still recorded. Stream and persistence errors are logged and absorbed;
// they never abort the drain and are not returned to the caller. The output
// stream ending is the only exit condition.
func (s *Streamer) StreamAndDetect(ctx context.Context, sessionID string, cmd sandbox.Command, expectedSlug string) {
	stream, err := cmd.Logs(ctx)
	if err != nil {
		s.log.Errorw("failed to open log stream",
			logger.FieldSessionID, sessionID,
			logger.FieldError, err)
		return
	}
	defer stream.Close()

	// Carry buffers hold the partial trailing line of each stream between
	// chunks. Chunks from stdout and stderr interleave but never share lines.
	carry := map[sandbox.StreamName]string{}
	detected := false

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.log.Warnw("log stream error",
				logger.FieldSessionID, sessionID,
				logger.FieldError, err)
			break
		}

		data := carry[chunk.Stream] + chunk.Data
		lines := strings.Split(data, "\n")
		carry[chunk.Stream] = lines[len(lines)-1]

		for _, line := range lines[:len(lines)-1] {
			s.handleLine(sessionID, chunk.Stream, line, expectedSlug, &detected)
		}
	}

	for name, rest := range carry {
		if rest != "" {
			s.handleLine(sessionID, name, rest, expectedSlug, &detected)
		}
	}
}

func (s *Streamer) handleLine(sessionID string, stream sandbox.StreamName, line, expectedSlug string, detected *bool) {
	if line == "" {
		return
	}

	if _, err := s.store.AppendLog(sessionID, levelForStream(stream), line); err != nil {
		s.log.Warnw("failed to persist log line",
			logger.FieldSessionID, sessionID,
			logger.FieldError, err)
	}

	if *detected {
		return
	}
	url := ExtractPullRequestURL(line)
	if url == "" {
		return
	}
	*detected = true

	if expectedSlug != "" && !ValidatePullRequestURL(url, expectedSlug) {
		s.log.Warnw("pull request URL does not match session repository",
			logger.FieldSessionID, sessionID,
			"url", url,
			"expected_slug", expectedSlug)
	}

	if _, err := s.store.UpdateSession(sessionID, Update{ResultURL: &url}); err != nil {
		s.log.Errorw("failed to record result URL",
			logger.FieldSessionID, sessionID,
			"url", url,
			logger.FieldError, err)
	} else {
		s.log.Infow("completion signal detected",
			logger.FieldSessionID, sessionID,
			"url", url)
	}
}

func levelForStream(name sandbox.StreamName) LogLevel {
	if name == sandbox.StreamStderr {
		return LogLevelStderr
	}
	return LogLevelStdout
}
