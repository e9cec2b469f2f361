package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"localnotify/internal/localnotify"
	logx "localnotify/pkg/logx"
)

const compactEvery = 500

// fileStore keeps everything in memory and makes it durable with two files:
//   - <prefix>.snapshot.json (every record, in List order)
//   - <prefix>.journal.jsonl (operations since the snapshot)
//
// The journal is folded into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu  sync.Mutex
	mem *memoryStore // guarded by mu, not by its own lock

	snapshotPath string
	journal      *os.File
	writes       int
}

type journalOp struct {
	Op   string                  `json:"op"`
	Name string                  `json:"name,omitempty"`
	Rec  *localnotify.WireRecord `json:"rec,omitempty"`
}

const (
	opPut    = "put"
	opDelete = "del"
	opClear  = "clear"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		mem:          newMemory(),
		snapshotPath: prefix + ".snapshot.json",
	}
	journalPath := prefix + ".journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := s.replay(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var recs []localnotify.WireRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil && err != io.EOF {
		return err
	}
	for _, r := range recs {
		s.mem.putLocked(r)
	}
	return nil
}

// replay applies journal lines over the snapshot. A torn last line from a
// crash is skipped.
func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			s.log.Warn("skipping bad journal line", logx.Err(err))
			continue
		}
		s.apply(op)
	}
	return sc.Err()
}

func (s *fileStore) apply(op journalOp) {
	switch op.Op {
	case opPut:
		if op.Rec != nil {
			s.mem.putLocked(*op.Rec)
		}
	case opDelete:
		s.mem.deleteLocked(op.Name)
	case opClear:
		s.mem.clearLocked()
	}
}

// write journals op, then applies it.
func (s *fileStore) write(op journalOp) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(op); err != nil {
		return err
	}
	s.apply(op)
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Put(_ context.Context, rec localnotify.WireRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(journalOp{Op: opPut, Rec: &rec})
}

func (s *fileStore) Get(_ context.Context, name string) (localnotify.WireRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return localnotify.WireRecord{}, false, ErrClosed
	}
	rec, ok := s.mem.byName[name]
	return rec, ok, nil
}

func (s *fileStore) List(_ context.Context) ([]localnotify.WireRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.listLocked(), nil
}

func (s *fileStore) listLocked() []localnotify.WireRecord {
	out := make([]localnotify.WireRecord, 0, len(s.mem.order))
	for _, name := range s.mem.order {
		out = append(out, s.mem.byName[name])
	}
	return out
}

func (s *fileStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrClosed
	}
	if _, ok := s.mem.byName[name]; !ok {
		return false, nil
	}
	return true, s.write(journalOp{Op: opDelete, Name: name})
}

func (s *fileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(journalOp{Op: opClear})
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.listLocked()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}
