// Package photo gives the HTTP layer access to the photos of one directory:
// listing, EXIF date read/write and resized previews.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

var (
	ErrInvalidName = errors.New(config.ErrInvalidName)
	ErrNotFound    = errors.New(config.ErrPhotoNotFound)
	ErrNoDate      = errors.New(config.ErrNoDate)
	ErrUnsupported = errors.New(config.ErrUnsupported)
	ErrCorruptExif = errors.New(config.ErrCorruptExif)
	ErrBadDate     = errors.New(config.ErrBadExifDate)
)

// Store is the metadata store the server works against.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Path(name string) (string, error)
	GetDate(ctx context.Context, name string) (string, error)
	SetDate(ctx context.Context, name, date string) error
	Thumbnail(ctx context.Context, name string, width, height int, w io.Writer) error
}

// DirStore is a Store over the flat photo directory Dir. Date changes are
// also appended to photo_changes.log in Dir.
type DirStore struct {
	Dir string

	logMu sync.Mutex
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{Dir: dir}
}

// List returns the photo file names of the directory, sorted.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrPhotoDirRead, err)
	}

	photos := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isPhoto(e.Name()) {
			photos = append(photos, e.Name())
		}
	}
	slices.Sort(photos)
	return photos, nil
}

func isPhoto(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return slices.Contains(config.PhotoExtensions, ext)
}

// Path resolves a photo name to its file path. Names are plain file names:
// anything that could leave the directory is rejected with ErrInvalidName.
func (s *DirStore) Path(name string) (string, error) {
	if name == "" ||
		strings.Contains(name, config.PathTraversal) ||
		strings.Contains(name, config.PathSeparator) ||
		strings.Contains(name, config.PathSeparatorNT) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	full := filepath.Join(s.Dir, name)
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("%s: %w", config.ErrPhotoRead, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return full, nil
}

// exifDateFields is the lookup order for the photo date.
var exifDateFields = []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime}

// GetDate returns the first EXIF date present among DateTimeOriginal,
// DateTimeDigitized and DateTime, as stored (YYYY:MM:DD HH:MM:SS).
func (s *DirStore) GetDate(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrPhotoRead, err)
	}
	defer func() { _ = f.Close() }()

	dates, err := readDates(f)
	if err != nil {
		slog.Debug(config.MsgDateReadFailed,
			config.LogKeyComponent, config.CompPhoto,
			config.LogKeyFile, name,
			config.LogKeyError, err)
		return "", fmt.Errorf("%w: %s", ErrNoDate, name)
	}

	for _, field := range exifDateFields {
		if val := dates[field]; val != "" {
			return val, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoDate, name)
}

// readDates returns the non-empty EXIF date fields found in r.
func readDates(r io.Reader) (map[exif.FieldName]string, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, err
	}

	dates := make(map[exif.FieldName]string, len(exifDateFields))
	for _, field := range exifDateFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		val, err := tag.StringVal()
		if err != nil {
			continue
		}
		if val = strings.TrimSpace(strings.TrimRight(val, "\x00")); val != "" {
			dates[field] = val
		}
	}
	return dates, nil
}

// existingDates reads the current DateTimeOriginal, DateTimeDigitized and
// DateTime values of a JPEG; missing or unreadable ones are empty.
func existingDates(data []byte) (original, digitized, image string) {
	dates, _ := readDates(bytes.NewReader(data))
	return dates[exif.DateTimeOriginal], dates[exif.DateTimeDigitized], dates[exif.DateTime]
}

// SetDate stores date (YYYY:MM:DD HH:MM:SS) in the three EXIF date tags of a
// JPEG. The file is replaced atomically.
func (s *DirStore) SetDate(ctx context.Context, name, date string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateExifDate(date); err != nil {
		return err
	}

	path, err := s.Path(name)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrPhotoRead, err)
	}

	out, old, err := rewriteDates(data, date)
	if err == nil {
		err = writeFileAtomic(path, out)
	}
	s.recordChange(name, old, date, err)
	if err != nil {
		slog.Error(config.MsgDateFailed,
			config.LogKeyComponent, config.CompPhoto,
			config.LogKeyFile, name,
			config.LogKeyError, err)
		return err
	}

	if old.inserted {
		slog.Info(config.MsgExifInserted, config.LogKeyComponent, config.CompPhoto, config.LogKeyFile, name)
	}
	slog.Info(config.MsgDateChanged,
		config.LogKeyComponent, config.CompPhoto,
		config.LogKeyFile, name,
		config.LogKeyOldOrig, old.original,
		config.LogKeyOldDigit, old.digitized,
		config.LogKeyOldImage, old.image,
		config.LogKeyNew, date)
	return nil
}

// recordChange appends the outcome of a date change to the change log of the
// photo directory, so previous dates can be recovered.
func (s *DirStore) recordChange(name string, old oldDates, date string, changeErr error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	path := filepath.Join(s.Dir, config.ChangeLogFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, config.FilePermShared)
	if err != nil {
		slog.Warn(config.ErrChangeLog,
			config.LogKeyComponent, config.CompPhoto,
			config.LogKeyPath, path,
			config.LogKeyError, err)
		return
	}
	defer func() { _ = f.Close() }()

	log := slog.New(slog.NewJSONHandler(f, nil)).With(config.LogKeyFile, name)
	if changeErr != nil {
		log.Error(config.MsgDateFailed, config.LogKeyNew, date, config.LogKeyError, changeErr)
		return
	}
	log.Info(config.MsgDateChanged,
		config.LogKeyOldOrig, old.original,
		config.LogKeyOldDigit, old.digitized,
		config.LogKeyOldImage, old.image,
		config.LogKeyNew, date)
}

// ValidateExifDate checks the EXIF date layout YYYY:MM:DD HH:MM:SS.
func ValidateExifDate(date string) error {
	if len(date) != config.ExifDateLength {
		return fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	if _, err := time.Parse(config.DateFormatExif, date); err != nil {
		return fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	return nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, keeping the original permissions.
func writeFileAtomic(path string, data []byte) error {
	mode := config.FilePermShared
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), config.TempFilePattern)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrPhotoWrite, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", config.ErrPhotoWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrPhotoWrite, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("%s: %w", config.ErrPhotoWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%s: %w", config.ErrPhotoWrite, err)
	}
	return nil
}
