// Package cache persists ModInfo documents and downloaded files below a
// cache root:
//
//	<root>/<source>/by_id/<id>.json
//	<root>/<source>/by_name/<name>.json  (link to the by_id document)
//	<root>/files/<filename>
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mcm/codec"
	"mcm/modinfo"
)

// ErrInvalidName is returned for names that would escape their directory.
var ErrInvalidName = errors.New("invalid cache name")

// Sources are the registries that get a cache directory.
var Sources = []modinfo.SourceType{modinfo.SourceModrinth, modinfo.SourceCurseForge}

type entryState int

const (
	entryMissing entryState = iota
	entryLoaded
	entryFailed
)

type entry struct {
	state entryState
	info  *modinfo.ModInfo
	err   error
}

type lookupKey struct {
	byName bool
	source modinfo.SourceType
	key    string
}

// Store is safe for concurrent use within one process. Concurrent processes
// sharing a root are not supported.
type Store struct {
	root   string
	logger *zap.SugaredLogger

	mu      sync.Mutex
	entries map[lookupKey]entry
	files   map[string]bool
}

// Open creates the directory layout below root.
func Open(root string, logger *zap.SugaredLogger) (*Store, error) {
	dirs := []string{filepath.Join(root, "files")}
	for _, src := range Sources {
		dirs = append(dirs,
			filepath.Join(root, src.String(), "by_id"),
			filepath.Join(root, src.String(), "by_name"))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", d, err)
		}
	}
	return &Store{
		root:    root,
		logger:  logger,
		entries: make(map[lookupKey]entry),
		files:   make(map[string]bool),
	}, nil
}

func (s *Store) Root() string { return s.root }

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) docPath(byName bool, src modinfo.SourceType, name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	by := "by_id"
	if byName {
		by = "by_name"
	}
	return filepath.Join(s.root, src.String(), by, name+".json"), nil
}

// GetByName returns the cached ModInfo for a project name, or nil if there
// is none.
func (s *Store) GetByName(src modinfo.SourceType, name string) (*modinfo.ModInfo, error) {
	return s.get(lookupKey{byName: true, source: src, key: name})
}

// GetByID returns the cached ModInfo for a project id, or nil if there is
// none.
func (s *Store) GetByID(src modinfo.SourceType, id string) (*modinfo.ModInfo, error) {
	return s.get(lookupKey{source: src, key: id})
}

func (s *Store) get(k lookupKey) (*modinfo.ModInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		e = s.load(k)
		s.entries[k] = e
		if e.state == entryLoaded {
			s.entries[lookupKey{source: k.source, key: e.info.ID()}] = e
			s.entries[lookupKey{byName: true, source: k.source, key: e.info.Name()}] = e
		}
	}
	switch e.state {
	case entryLoaded:
		return e.info, nil
	case entryFailed:
		return nil, e.err
	}
	return nil, nil
}

// load reads one document. Unreadable or malformed documents are misses so
// that the caller refetches them.
func (s *Store) load(k lookupKey) entry {
	p, err := s.docPath(k.byName, k.source, k.key)
	if err != nil {
		return entry{state: entryFailed, err: err}
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return entry{state: entryMissing}
	}
	if err != nil {
		return entry{state: entryFailed, err: fmt.Errorf("failed to read %s: %w", p, err)}
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		s.logger.Warnw("Ignoring malformed cache document", "path", p, "error", err)
		return entry{state: entryMissing}
	}
	info, err := codec.DecodeAs[*modinfo.ModInfo](raw)
	if err != nil || info == nil {
		s.logger.Warnw("Ignoring undecodable cache document", "path", p, "error", err)
		return entry{state: entryMissing}
	}
	return entry{state: entryLoaded, info: info}
}

// Put writes info and links its name to it.
func (s *Store) Put(src modinfo.SourceType, info *modinfo.ModInfo) error {
	idPath, err := s.docPath(false, src, info.ID())
	if err != nil {
		return err
	}
	namePath, err := s.docPath(true, src, info.Name())
	if err != nil {
		return err
	}
	enc, err := codec.Encode(info)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", info.Name(), err)
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", info.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(idPath, b); err != nil {
		return err
	}
	if err := s.link(idPath, namePath, b); err != nil {
		return err
	}
	e := entry{state: entryLoaded, info: info}
	s.entries[lookupKey{source: src, key: info.ID()}] = e
	s.entries[lookupKey{byName: true, source: src, key: info.Name()}] = e
	return nil
}

// link points namePath at idPath with a relative symlink. Where symlinks
// are unavailable the document is copied instead.
func (s *Store) link(idPath, namePath string, doc []byte) error {
	target := filepath.Join("..", "by_id", filepath.Base(idPath))
	fi, err := os.Lstat(namePath)
	switch {
	case err == nil && fi.Mode()&os.ModeSymlink != 0:
		if cur, _ := os.Readlink(namePath); cur == target {
			return nil
		}
		if err := os.Remove(namePath); err != nil {
			return fmt.Errorf("failed to replace link %s: %w", namePath, err)
		}
	case err == nil:
		return writeFileAtomic(namePath, doc)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to stat %s: %w", namePath, err)
	}
	if err := os.Symlink(target, namePath); err != nil {
		s.logger.Debugw("Symlink failed, copying cache document", "path", namePath, "error", err)
		return writeFileAtomic(namePath, doc)
	}
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// FilePath is where a downloaded file with this name is kept.
func (s *Store) FilePath(filename string) (string, error) {
	if err := validName(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.root, "files", filename), nil
}

// LookupFile returns the path of an already downloaded file. Existence is
// checked once per name and remembered.
func (s *Store) LookupFile(filename string) (string, bool, error) {
	p, err := s.FilePath(filename)
	if err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, ok := s.files[filename]
	if !ok {
		_, statErr := os.Stat(p)
		exists = statErr == nil
		s.files[filename] = exists
	}
	return p, exists, nil
}

// MarkFile records that filename now exists.
func (s *Store) MarkFile(filename string) {
	s.mu.Lock()
	s.files[filename] = true
	s.mu.Unlock()
}
