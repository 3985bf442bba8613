// Package snapshot stores engine state as a JSON header line followed by a gob body, zstd
// compressed.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Seed    int64  `json:"seed"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate     int    `json:"tick_rate_hz"`
	NextEntityID uint64 `json:"next_entity_id"`

	Realms    []RealmV1    `json:"realms"`
	Portals   []PortalV1   `json:"portals"`
	Players   []PlayerV1   `json:"players"`
	Cooldowns []CooldownV1 `json:"cooldowns,omitempty"`
}

// RealmV1 is a realm the host must recreate on load. Fixed realms are listed too so their
// edited columns survive.
type RealmV1 struct {
	ID          string     `json:"id"`
	Seed        int64      `json:"seed"`
	BaseHeight  int        `json:"base_height"`
	Amplitude   int        `json:"amplitude"`
	RegionSize  int        `json:"region_size"`
	CenterCX    int        `json:"center_cx"`
	CenterCZ    int        `json:"center_cz"`
	BoundChunks int        `json:"bound_chunks"`
	Border      BorderV1   `json:"border"`
	Edited      []ColumnV1 `json:"edited,omitempty"`
}

type BorderV1 struct {
	CenterX int `json:"center_x"`
	CenterZ int `json:"center_z"`
	Size    int `json:"size"`
}

type ColumnV1 struct {
	X int `json:"x"`
	Z int `json:"z"`
	H int `json:"h"`
}

type PortalV1 struct {
	ID           uint64 `json:"id"`
	Owner        string `json:"owner,omitempty"`
	Home         string `json:"home"`
	Target       string `json:"target"`
	Pos          [3]int `json:"pos"`
	SingleUse    bool   `json:"single_use,omitempty"`
	DespawnTicks int    `json:"despawn_ticks,omitempty"`
	Primed       bool   `json:"primed,omitempty"`
	State        uint8  `json:"state"`
	Remaining    int    `json:"remaining,omitempty"`
	Age          uint64 `json:"age"`
}

// PlayerV1 carries position and persistent attachments (affinity set, return path).
type PlayerV1 struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Realm       string            `json:"realm"`
	Pos         [3]int            `json:"pos"`
	Attachments map[string][]byte `json:"attachments,omitempty"`
}

type CooldownV1 struct {
	Player string `json:"player"`
	Until  uint64 `json:"until"`
}

// FileName is the snapshot file name for a tick.
func FileName(tick uint64) string { return fmt.Sprintf("%d.snap.zst", tick) }

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Latest returns the highest-tick snapshot in dir, or "" when there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
