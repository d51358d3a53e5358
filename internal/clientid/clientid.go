// Package clientid resolves the anonymous identifier attached to every
// metrics submission.
package clientid

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// AutomatedTest identifies sessions driven by test automation.
	AutomatedTest = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	// OptedOut is sent while the user has not permitted telemetry.
	OptedOut = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	// Unknown is used when no identifier could be read or stored.
	Unknown = uuid.Nil
)

// Options controls Resolve.
type Options struct {
	File          string // where the persisted id lives
	Permitted     bool
	AutomatedTest bool
	Logger        *zap.SugaredLogger
}

// Resolve picks the client id for this session, creating and persisting
// a new one on first use.
func Resolve(opts Options) uuid.UUID {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	switch {
	case opts.AutomatedTest:
		return AutomatedTest
	case !opts.Permitted:
		return OptedOut
	case opts.File == "":
		return Unknown
	}

	id, err := load(opts.File)
	if err == nil {
		return id
	}
	if !errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("client id file %s is unusable, replacing it: %v", opts.File, err)
	}

	id = uuid.New()
	if err := store(opts.File, id); err != nil {
		logger.Errorf("failed to persist client id: %v", err)
		return Unknown
	}
	return id
}

func load(path string) (uuid.UUID, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Unknown, err
	}
	id, err := uuid.ParseBytes(bytes.TrimSpace(raw))
	if err != nil {
		return Unknown, fmt.Errorf("parse %s: %w", path, err)
	}
	if id == Unknown || id == OptedOut || id == AutomatedTest {
		return Unknown, fmt.Errorf("reserved client id in %s", path)
	}
	return id, nil
}

func store(path string, id uuid.UUID) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(id.String()+"\n"), 0o600)
}
