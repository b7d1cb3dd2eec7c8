package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// userFile is the on-disk schema of a per-user settings file. The top-level
// fields are the defaults, the sources map optionally overrides them per
// source.
type userFile struct {
	Snapshot `yaml:",inline"`
	Sources  map[string]Snapshot `yaml:"sources"`
}

type cachedFile struct {
	modTime time.Time
	file    userFile
}

// FileProvider reads settings from <dir>/<user>.yaml (or .yml). Files are
// cached and re-read only when their modification time changes, so calling
// Get on every worker iteration stays cheap.
type FileProvider struct {
	dir string

	mu    sync.RWMutex
	cache map[string]cachedFile
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{
		dir:   dir,
		cache: map[string]cachedFile{},
	}
}

func (p *FileProvider) Get(_ context.Context, user, source string) (Snapshot, error) {
	f, err := p.load(user)
	if err != nil {
		return Snapshot{}, err
	}
	if override, ok := f.Sources[source]; ok {
		merged := mergeSnapshots(f.Snapshot, override)
		merged.Normalize()
		return merged, nil
	}
	s := f.Snapshot
	s.Normalize()
	return s, nil
}

func (p *FileProvider) load(user string) (userFile, error) {
	path, info, err := p.statUserFile(user)
	if err != nil {
		return userFile{}, err
	}

	p.mu.RLock()
	cached, ok := p.cache[user]
	p.mu.RUnlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.file, nil
	}

	var f userFile
	if err := cleanenv.ReadConfig(path, &f); err != nil {
		return userFile{}, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	p.mu.Lock()
	p.cache[user] = cachedFile{modTime: info.ModTime(), file: f}
	p.mu.Unlock()
	return f, nil
}

func (p *FileProvider) statUserFile(user string) (string, os.FileInfo, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(p.dir, user+ext)
		info, err := os.Stat(path)
		if err == nil {
			return path, info, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNoSettings, user)
}

// mergeSnapshots overlays the non-zero fields of override onto base.
func mergeSnapshots(base, override Snapshot) Snapshot {
	merged := base
	if len(override.Keywords) > 0 {
		merged.Keywords = override.Keywords
	}
	if override.Location != "" {
		merged.Location = override.Location
	}
	if override.RadiusKM != 0 {
		merged.RadiusKM = override.RadiusKM
	}
	if override.MinPrice != nil {
		merged.MinPrice = override.MinPrice
	}
	if override.MaxPrice != nil {
		merged.MaxPrice = override.MaxPrice
	}
	if override.IntervalSeconds != 0 {
		merged.IntervalSeconds = override.IntervalSeconds
	}
	return merged
}
