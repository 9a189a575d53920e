package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// record layout: [8 bytes id][4 bytes len][4 bytes crc32][len bytes json]
const (
	recordHeaderLen = 16
	maxRecordLen    = 1 << 20
)

var ErrCorrupt = errors.New("wal: corrupt record")

// FileWAL persists readings between the poller and the sinks so a crash or a
// sink outage never loses a cycle. Each Append is flushed to the OS before it
// returns; Commit records the highest id the sinks have accepted.
type FileWAL struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	fsync     bool
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
}

type Option func(*FileWAL)

// WithFsync makes every Append call fsync after flushing.
func WithFsync(on bool) Option {
	return func(w *FileWAL) { w.fsync = on }
}

func NewFileWAL(dir string, opts ...Option) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &FileWAL{
		dir:      dir,
		path:     filepath.Join(dir, "readings.wal"),
		metaPath: filepath.Join(dir, "readings.wal.meta"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.openLog(); err != nil {
		return nil, err
	}
	if err := w.bootstrap(); err != nil {
		_ = w.file.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWAL) openLog() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 64<<10)
	return nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	return nil
}

// scanExisting walks the log and cuts it at the first torn or corrupt record,
// which is where a crash mid-append leaves it.
func (w *FileWAL) scanExisting() error {
	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	var (
		offset int64
		lastID ports.WALEntryID
	)
	err = readRecords(bufio.NewReader(rf), func(id ports.WALEntryID, _ []byte, size int64) error {
		offset += size
		lastID = id
		return nil
	})
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return fmt.Errorf("wal scan: %w", err)
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(r *domain.SensorReading) (ports.WALEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}

	id := w.nextID + 1
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))
	binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(b))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(b); err != nil {
		return 0, err
	}
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}
	if w.fsync {
		if err := w.file.Sync(); err != nil {
			return 0, err
		}
	}

	w.nextID = id
	w.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

// Iterate calls fn for every record with id >= from, in append order.
func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, r *domain.SensorReading) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return readRecords(bufio.NewReader(f), func(id ports.WALEntryID, body []byte, _ int64) error {
		if id < from {
			return nil
		}
		var r domain.SensorReading
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrCorrupt, id, err)
		}
		return fn(id, &r)
	})
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto <= w.committed {
		return nil
	}
	w.committed = upto
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log without the committed prefix. The new
// file is written beside the old one and renamed over it.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	src, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(tmp)

	var kept int64
	err = readRecords(bufio.NewReader(src), func(id ports.WALEntryID, body []byte, size int64) error {
		if id <= w.committed {
			return nil
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
		binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(body))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := bw.Write(body); err != nil {
			return err
		}
		kept += size
		return nil
	})
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("wal truncate: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	if err := w.openLog(); err != nil {
		return err
	}
	w.sizeBytes = kept
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := errors.Join(w.writer.Flush(), w.file.Close())
	w.file = nil
	return err
}

func (w *FileWAL) persistMetaLocked() error {
	tmp := w.metaPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", w.committed)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.metaPath)
}

// readRecords decodes records until EOF. A torn tail or checksum failure stops
// the walk with ErrCorrupt; records before it have already been delivered.
func readRecords(r io.Reader, fn func(id ports.WALEntryID, body []byte, size int64) error) error {
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: torn header", ErrCorrupt)
			}
			return err
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])
		sum := binary.BigEndian.Uint32(hdr[12:16])
		if length > maxRecordLen {
			return fmt.Errorf("%w: length %d at id %d", ErrCorrupt, length, id)
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: torn body at id %d", ErrCorrupt, id)
			}
			return err
		}
		if crc32.ChecksumIEEE(body) != sum {
			return fmt.Errorf("%w: checksum at id %d", ErrCorrupt, id)
		}
		if err := fn(id, body, int64(recordHeaderLen)+int64(length)); err != nil {
			return err
		}
	}
}

var _ ports.WAL = (*FileWAL)(nil)
