package state

import (
	"encoding/json"
	"fmt"
	"slices"
)

const snapshotVersion = 1

// snapshot is the persisted form of the store. Root admins are not part of
// it: they come from configuration on every boot.
type snapshot struct {
	Version        int              `json:"version"`
	Credentials    []string         `json:"credentials"`
	RotationCursor int              `json:"rotation_cursor"`
	UserVoice      map[int64]string `json:"user_voice"`
	Maintenance    bool             `json:"maintenance"`
	Admins         []int64          `json:"admins"`
}

// encode renders a deterministic document; encoding/json sorts map keys.
func (s snapshot) encode() ([]byte, error) {
	if s.Credentials == nil {
		s.Credentials = []string{}
	}
	if s.UserVoice == nil {
		s.UserVoice = map[int64]string{}
	}
	if s.Admins == nil {
		s.Admins = []int64{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("state: encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Version > snapshotVersion {
		return snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	if s.RotationCursor < 0 {
		return snapshot{}, fmt.Errorf("%w: negative rotation cursor", ErrCorrupt)
	}

	creds := make([]string, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		if c != "" {
			creds = append(creds, c)
		}
	}
	s.Credentials = creds
	if len(creds) == 0 {
		s.RotationCursor = 0
	} else {
		s.RotationCursor %= len(creds)
	}
	for id, voice := range s.UserVoice {
		if voice == "" {
			delete(s.UserVoice, id)
		}
	}
	s.Admins = slices.DeleteFunc(s.Admins, func(id int64) bool { return id == 0 })
	return s, nil
}
