package tiering

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsanders-rh/modelctl/pkg/types"
)

// ErrNoObjectStore is returned when an s3:// path is used without an S3 backend
var ErrNoObjectStore = errors.New("no object storage backend configured")

const s3Scheme = "s3://"

// Backend reads, writes and removes artifact bytes at a storage path
type Backend interface {
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, r io.Reader) error
	Delete(ctx context.Context, path string) error
}

// FileBackend stores artifacts on a local or mounted filesystem
type FileBackend struct{}

// Read opens the artifact at path
func (FileBackend) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Write creates or truncates the artifact at path, creating parent directories
func (FileBackend) Write(_ context.Context, path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tier directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Delete removes the artifact at path
func (FileBackend) Delete(_ context.Context, path string) error {
	return os.Remove(path)
}

// Roots are the storage roots of each tier. A root is a directory or an
// s3://bucket/prefix location.
type Roots struct {
	Hot     string `mapstructure:"hot" validate:"required"`
	Cold    string `mapstructure:"cold" validate:"required"`
	Archive string `mapstructure:"archive" validate:"required"`
}

// DefaultRoots returns tier roots under a local data directory
func DefaultRoots() Roots {
	return Roots{
		Hot:     "data/storage/hot",
		Cold:    "data/storage/cold",
		Archive: "data/storage/archive",
	}
}

// Root returns the root of a tier
func (r Roots) Root(t types.Tier) string {
	switch t {
	case types.TierCold:
		return r.Cold
	case types.TierArchive:
		return r.Archive
	default:
		return r.Hot
	}
}

// TierOf reports the tier whose root prefixes path. Paths under no known
// root are treated as hot.
func (r Roots) TierOf(path string) types.Tier {
	for _, t := range []types.Tier{types.TierHot, types.TierCold, types.TierArchive} {
		root := strings.TrimSuffix(r.Root(t), "/")
		if root != "" && strings.HasPrefix(path, root+"/") {
			return t
		}
	}
	return types.TierHot
}

// Target returns where the artifact stored under key at path lands in tier
// t: <root>/<key>/<file name>. Each artifact owns its key directory, so
// artifacts sharing a file name never land on the same path.
func (r Roots) Target(key, path string, t types.Tier) string {
	name := path[strings.LastIndex(path, "/")+1:]
	return strings.TrimSuffix(r.Root(t), "/") + "/" + key + "/" + name
}

// router dispatches each path to the filesystem or the object store
type router struct {
	file Backend
	s3   Backend
}

func (rt router) backend(path string) (Backend, error) {
	if strings.HasPrefix(path, s3Scheme) {
		if rt.s3 == nil {
			return nil, ErrNoObjectStore
		}
		return rt.s3, nil
	}
	return rt.file, nil
}

// copy streams src into dst; the source is left in place
func (rt router) copy(ctx context.Context, src, dst string) error {
	from, err := rt.backend(src)
	if err != nil {
		return err
	}
	to, err := rt.backend(dst)
	if err != nil {
		return err
	}

	rc, err := from.Read(ctx, src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	defer rc.Close()

	if err := to.Write(ctx, dst, rc); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func (rt router) delete(ctx context.Context, path string) error {
	b, err := rt.backend(path)
	if err != nil {
		return err
	}
	return b.Delete(ctx, path)
}
