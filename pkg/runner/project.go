package runner

import (
	"os"
	"path/filepath"

	"playbench/pkg/cache"
	"playbench/pkg/errors"
)

// Project is a scratch cargo package on disk, holding one manifest and one
// source file.
type Project struct {
	// Dir is the package root containing Cargo.toml and src/main.rs.
	Dir string
}

// scratchRoot returns the directory scratch projects are created under.
func scratchRoot() string {
	return filepath.Join(os.TempDir(), "playbench")
}

// Materialize writes the manifest and source into a scratch package whose
// directory name is derived from the content hash, so identical inputs
// reuse one directory and cargo's incremental build artifacts with it.
func Materialize(manifest, source string) (*Project, error) {
	if source == "" {
		return nil, errors.New(errors.ErrCodeInvalidSource, "empty source")
	}

	sum := cache.Hash([]byte(manifest + "\x00" + source))
	dir := filepath.Join(scratchRoot(), "p"+sum[:16])
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create project directory")
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(manifest), 0o644); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "write manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "main.rs"), []byte(source), 0o644); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "write source")
	}
	return &Project{Dir: dir}, nil
}

// Remove deletes the project directory and everything under it.
func (p *Project) Remove() error {
	if p == nil || p.Dir == "" {
		return nil
	}
	return os.RemoveAll(p.Dir)
}
