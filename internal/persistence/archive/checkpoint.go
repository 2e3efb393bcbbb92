package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mobsim/internal/persistence/snapshot"
)

const snapshotExt = ".snap.zst"

type CheckpointMeta struct {
	Tick      uint64 `json:"tick"`
	WorldID   string `json:"world_id"`
	Seed      int64  `json:"seed"`
	Agents    int    `json:"agents"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// SnapshotPath is where the rolling snapshot for tick lives.
func SnapshotPath(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d%s", tick, snapshotExt))
}

// ArchiveCheckpoint copies a snapshot into worldDir/archives/checkpoint_<tick>/
// when it closes a window of every ticks. Snapshots hold the last executed
// tick, so window k ends at tick every*k-1.
func ArchiveCheckpoint(worldDir, snapshotPath string, snap snapshot.SnapshotV1, every uint64) (archivedPath string, archived bool, err error) {
	if every == 0 || (snap.Header.Tick+1)%every != 0 {
		return "", false, nil
	}

	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("checkpoint_%012d", snap.Header.Tick))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := CheckpointMeta{
		Tick:      snap.Header.Tick,
		WorldID:   snap.Header.WorldID,
		Seed:      snap.Seed,
		Agents:    len(snap.Agents),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

type snapFile struct {
	path string
	tick uint64
}

func listSnapshots(dir string) ([]snapFile, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []snapFile
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, snapshotExt), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, snapFile{path: filepath.Join(dir, name), tick: tick})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	return out, nil
}

// LatestSnapshot finds the highest-tick snapshot in dir.
func LatestSnapshot(dir string) (path string, tick uint64, ok bool, err error) {
	files, err := listSnapshots(dir)
	if err != nil || len(files) == 0 {
		return "", 0, false, err
	}
	last := files[len(files)-1]
	return last.path, last.tick, true, nil
}

// PruneSnapshots deletes all but the newest keep snapshots in dir and returns
// the removed paths. keep <= 0 keeps everything.
func PruneSnapshots(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	files, err := listSnapshots(dir)
	if err != nil || len(files) <= keep {
		return nil, err
	}
	var removed []string
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, f.path)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
