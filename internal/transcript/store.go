package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// Segment is one recognized span of speech with absolute times.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Store is an append-only per-video segment log, one JSON object per
// line. Each append flushes a complete line, so a crash truncates at a
// line boundary and bad lines can be skipped on read.
type Store struct {
	dir string
	log *logger.Logger
}

func NewStore(dir string, log *logger.Logger) *Store {
	return &Store{dir: dir, log: log}
}

func (s *Store) Path(videoID string) string {
	return filepath.Join(s.dir, videoID+".jsonl")
}

func (s *Store) Exists(videoID string) bool {
	info, err := os.Stat(s.Path(videoID))
	return err == nil && info.Size() > 0
}

// Load reads segments in emission order. limit <= 0 means all.
func (s *Store) Load(videoID string, limit int) ([]Segment, error) {
	f, err := os.Open(s.Path(videoID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript for %s: %w", videoID, err)
	}
	defer f.Close()

	var out []Segment
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var seg Segment
		if err := json.Unmarshal(line, &seg); err != nil {
			continue
		}
		out = append(out, seg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript for %s: %w", videoID, err)
	}
	return out, nil
}

// LastEndTime scans for the maximum segment end, tolerating bad lines.
func (s *Store) LastEndTime(videoID string) (float64, error) {
	segs, err := s.Load(videoID, 0)
	if err != nil {
		return 0, err
	}
	var last float64
	for _, seg := range segs {
		if seg.End > last {
			last = seg.End
		}
	}
	return last, nil
}

func (s *Store) Append(videoID string, segs []Segment) error {
	if len(segs) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	f, err := os.OpenFile(s.Path(videoID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript for append: %w", err)
	}
	defer f.Close()

	for _, seg := range segs {
		line, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("marshal segment: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append segment: %w", err)
		}
	}
	return f.Sync()
}

func (s *Store) Delete(videoID string) error {
	err := os.Remove(s.Path(videoID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete transcript for %s: %w", videoID, err)
	}
	return nil
}

// ContentHash hashes the raw log file. Any append changes the hash, so
// completed artifacts can detect staleness by comparison.
func (s *Store) ContentHash(videoID string) (string, error) {
	f, err := os.Open(s.Path(videoID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open transcript for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash transcript for %s: %w", videoID, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
