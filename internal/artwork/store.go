package artwork

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store persists uploaded artwork files and generated tracking proofs.
type Store interface {
	SaveArtwork(bookingID, filename string, data io.Reader) (string, error)
	SaveProof(bookingID string, png []byte) (string, error)
	Open(path string) (io.ReadCloser, error)
}

// LocalStore writes to a directory on the service volume, one subdirectory
// per booking. The print-preparation pipeline reads from the same volume.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "artwork"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artwork dir: %w", err)
	}
	return &LocalStore{Dir: dir}, nil
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
}

// SaveArtwork stores an upload under the booking's directory. The filename
// is flattened to its base name so uploads can't escape the store.
func (s *LocalStore) SaveArtwork(bookingID, filename string, data io.Reader) (string, error) {
	name := filepath.Base(filename)
	if name == "" || name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid artwork filename %q", filename)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("unsupported artwork format %q", ext)
	}

	dir := filepath.Join(s.Dir, bookingID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create booking artwork dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artwork file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write artwork file: %w", err)
	}
	return path, nil
}

// SaveProof stores the tracking QR next to the booking's artwork.
func (s *LocalStore) SaveProof(bookingID string, png []byte) (string, error) {
	dir := filepath.Join(s.Dir, bookingID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create booking artwork dir: %w", err)
	}
	path := filepath.Join(dir, "proof.png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write proof file: %w", err)
	}
	return path, nil
}

// Open refuses paths outside the store root.
func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	root, err := filepath.Abs(s.Dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q is outside the artwork store", path)
	}
	return os.Open(abs)
}
