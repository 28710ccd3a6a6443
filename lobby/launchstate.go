// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parlor-games/parlor/lib/codec"
)

// launchRecord is the durable form of an ActiveLaunch. The file
// exists so a restarted lobby can sweep runtime directories and
// ports left behind by a crash; processes themselves are not
// re-adopted.
type launchRecord struct {
	RoomID     int64  `cbor:"1,keyasint"`
	Port       int    `cbor:"2,keyasint"`
	RuntimeDir string `cbor:"3,keyasint"`
	StartedAt  int64  `cbor:"4,keyasint"`
}

type launchStateFile struct {
	Launches []launchRecord `cbor:"1,keyasint"`
}

// persistLaunchState writes the current launch table atomically.
// Failures are logged, not fatal: the state file is a recovery aid.
func (s *Server) persistLaunchState() {
	if s.cfg.LaunchStateFile == "" {
		return
	}
	snapshot := s.reg.launchSnapshot()
	state := launchStateFile{Launches: make([]launchRecord, 0, len(snapshot))}
	for _, launch := range snapshot {
		state.Launches = append(state.Launches, launchRecord{
			RoomID:     launch.RoomID,
			Port:       launch.Port,
			RuntimeDir: launch.RuntimeDir,
			StartedAt:  launch.StartedAt,
		})
	}
	if err := writeFileAtomic(s.cfg.LaunchStateFile, state); err != nil {
		s.logger.Warn("persisting launch state", "error", err)
	}
}

// sweepStaleLaunches removes runtime directories recorded by a
// previous run, then resets the state file.
func (s *Server) sweepStaleLaunches() error {
	if s.cfg.LaunchStateFile == "" {
		return nil
	}
	raw, err := os.ReadFile(s.cfg.LaunchStateFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading launch state: %w", err)
	}
	var state launchStateFile
	if err := codec.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("decoding launch state: %w", err)
	}
	for _, record := range state.Launches {
		s.logger.Info("sweeping stale runtime directory",
			"roomId", record.RoomID, "dir", record.RuntimeDir)
		if err := os.RemoveAll(record.RuntimeDir); err != nil {
			s.logger.Warn("removing stale runtime directory", "dir", record.RuntimeDir, "error", err)
		}
	}
	return writeFileAtomic(s.cfg.LaunchStateFile, launchStateFile{})
}

// writeFileAtomic encodes v as CBOR and renames it into place so
// readers never observe a partial file.
func writeFileAtomic(path string, v any) error {
	encoded, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
