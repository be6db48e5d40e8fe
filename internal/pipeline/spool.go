// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/renameio/v2"
)

var safeSpoolID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// spool keeps uploaded audio on disk until its session is terminal, so a
// restarted process can resume the continuation. A nil spool is disabled.
type spool struct {
	dir string
}

func newSpool(dir string) (*spool, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &spool{dir: dir}, nil
}

func (s *spool) path(id string) (string, error) {
	if !safeSpoolID.MatchString(id) {
		return "", fmt.Errorf("unsafe session id %q", id)
	}
	return filepath.Join(s.dir, id+".audio"), nil
}

// Save writes audio atomically (temp file, fsync, rename).
func (s *spool) Save(id string, audio []byte) error {
	if s == nil {
		return nil
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(p, audio, 0o600); err != nil {
		return fmt.Errorf("spool %s: %w", id, err)
	}
	return nil
}

// Load returns the spooled audio; ok is false when none exists.
func (s *spool) Load(id string) (audio []byte, ok bool, err error) {
	if s == nil {
		return nil, false, nil
	}
	p, err := s.path(id)
	if err != nil {
		return nil, false, err
	}
	audio, err = os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return audio, true, nil
}

func (s *spool) Remove(id string) error {
	if s == nil {
		return nil
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
