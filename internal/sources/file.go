package sources

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// fileConfig is the on-disk shape of a profile file. A file may define one
// or more sources.
type fileConfig struct {
	Sources []*Profile `yaml:"sources"`
}

// LoadDir reads every yaml file in the given directory tree and registers
// the profiles it finds, overriding builtins of the same name.
func (r *Registry) LoadDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return r.loadFile(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		return r.loadFile(path)
	})
}

func (r *Registry) loadFile(path string) error {
	var cfg fileConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return fmt.Errorf("failed to read source profiles from %s: %w", path, err)
	}
	for _, p := range cfg.Sources {
		if err := r.Add(p); err != nil {
			return fmt.Errorf("invalid source profile in %s: %w", path, err)
		}
	}
	return nil
}
