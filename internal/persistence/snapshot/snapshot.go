package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// CurrentDataVersion is written into every agent document. Readers treat a
// missing or zero marker as a document written before the newer boolean
// fields existed.
const CurrentDataVersion = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       int64 `json:"seed"`
	TickRate   int   `json:"tick_rate_hz"`
	Difficulty int   `json:"difficulty"`

	BaseHeight     int    `json:"base_height"`
	HeightVariance int    `json:"height_variance,omitempty"`
	PoolPermille   uint64 `json:"pool_permille,omitempty"`

	Blocks  []BlockEditV1  `json:"blocks,omitempty"`
	Agents  []AgentV1      `json:"agents"`
	Players []PlayerV1     `json:"players,omitempty"`
	Items   []ItemEntityV1 `json:"items,omitempty"`
	Knots   []KnotV1       `json:"knots,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextItem uint64 `json:"next_item"`
	Spawned  uint64 `json:"spawned"`
}

type BlockEditV1 struct {
	Pos   [3]int `json:"pos"`
	Block uint8  `json:"block"`
}

// ItemV1 is one stack. An empty slot is the zero value, written as {}.
type ItemV1 struct {
	ID           string            `json:"id,omitempty"`
	Count        int               `json:"count,omitempty"`
	Meta         int               `json:"meta,omitempty"`
	Damage       int               `json:"damage,omitempty"`
	Tag          map[string]string `json:"tag,omitempty"`
	Enchantments []string          `json:"enchantments,omitempty"`
}

// LeashV1 references the holder either by identity or by knot position.
type LeashV1 struct {
	UUID string `json:"uuid,omitempty"`
	X    *int   `json:"x,omitempty"`
	Y    *int   `json:"y,omitempty"`
	Z    *int   `json:"z,omitempty"`
}

func (l LeashV1) HasPos() bool { return l.X != nil && l.Y != nil && l.Z != nil }

type ModifierV1 struct {
	UUID      string  `json:"uuid"`
	Name      string  `json:"name,omitempty"`
	Amount    float64 `json:"amount"`
	Operation int     `json:"operation"`
}

type AttributeV1 struct {
	Name      string       `json:"name"`
	Base      float64      `json:"base"`
	Modifiers []ModifierV1 `json:"modifiers,omitempty"`
}

type AgentV1 struct {
	ID     string     `json:"id"`
	Kind   string     `json:"kind"`
	Pos    [3]float64 `json:"pos"`
	Yaw    float64    `json:"yaw"`
	Pitch  float64    `json:"pitch"`
	Health float64    `json:"health"`

	// DataVersion gates the later-added booleans on read.
	DataVersion int `json:"data_version,omitempty"`

	HandItems        []ItemV1  `json:"hand_items,omitempty"`
	ArmorItems       []ItemV1  `json:"armor_items,omitempty"`
	HandDropChances  []float32 `json:"hand_drop_chances,omitempty"`
	ArmorDropChances []float32 `json:"armor_drop_chances,omitempty"`

	CanPickUpLoot       *bool `json:"can_pick_up_loot,omitempty"`
	PersistenceRequired bool  `json:"persistence_required"`
	LeftHanded          bool  `json:"left_handed"`
	NoAI                bool  `json:"no_ai,omitempty"`
	FromSpawner         bool  `json:"from_spawner,omitempty"`

	Leashed bool     `json:"leashed"`
	Leash   *LeashV1 `json:"leash,omitempty"`
	MountID string   `json:"mount_id,omitempty"`

	DeathLootTable     string `json:"death_loot_table,omitempty"`
	DeathLootTableSeed int64  `json:"death_loot_table_seed,omitempty"`

	Attributes []AttributeV1 `json:"attributes,omitempty"`
	IdleTicks  int           `json:"idle_ticks,omitempty"`
}

type PlayerV1 struct {
	ID  string     `json:"id"`
	Pos [3]float64 `json:"pos"`
}

type ItemEntityV1 struct {
	EntityID string     `json:"entity_id"`
	Pos      [3]float64 `json:"pos"`
	Item     ItemV1     `json:"item"`
	Owner    string     `json:"owner,omitempty"`
}

type KnotV1 struct {
	ID  string `json:"id"`
	Pos [3]int `json:"pos"`
}

// WriteSnapshot writes a zstd stream holding one JSON header line followed by
// the JSON document.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Encode(f, snap); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

func Encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("encode body: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	snap, err := Decode(f)
	if err != nil {
		return snap, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return snap, nil
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The body repeats the header; the line only exists for cheap inspection.
	if _, err := br.ReadBytes('\n'); err != nil {
		if errors.Is(err, io.EOF) {
			return snap, fmt.Errorf("missing header line: %w", io.ErrUnexpectedEOF)
		}
		return snap, err
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode body: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the first line of a snapshot file.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header %s: %w", path, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header %s: %w", path, err)
	}
	return h, nil
}
