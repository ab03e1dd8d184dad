package photo

import (
	"bytes"
	"fmt"

	dexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

var jpegSOI = []byte{0xFF, 0xD8}

// dateTag is one EXIF date field and the IFD that holds it.
type dateTag struct {
	ifdPath string
	name    string
}

// dateTags are written together; DateTime lives in IFD0, the other two in the
// Exif sub-IFD, which is created when missing.
var dateTags = []dateTag{
	{config.ExifIFDRoot, config.ExifTagDateTime},
	{config.ExifIFDExif, config.ExifTagDateTimeOriginal},
	{config.ExifIFDExif, config.ExifTagDateTimeDigitized},
}

// oldDates holds the values found before a rewrite.
type oldDates struct {
	original, digitized, image string
	inserted                   bool
}

// rewriteDates returns a copy of the JPEG data with date set in DateTime,
// DateTimeOriginal and DateTimeDigitized. Tags that do not exist yet are
// added, and a JPEG without an EXIF segment gets a new one. Every other tag is
// carried over.
func rewriteDates(data []byte, date string) ([]byte, oldDates, error) {
	var old oldDates
	if !bytes.HasPrefix(data, jpegSOI) {
		return nil, old, fmt.Errorf("%w: not a JPEG", ErrUnsupported)
	}

	parsed, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, old, fmt.Errorf("%w: %v", ErrCorruptExif, err)
	}
	sl, ok := parsed.(*jpegstructure.SegmentList)
	if !ok {
		return nil, old, fmt.Errorf("%w: unexpected JPEG structure", ErrCorruptExif)
	}

	rootIb, inserted, err := exifBuilder(sl)
	if err != nil {
		return nil, old, fmt.Errorf("%w: %v", ErrCorruptExif, err)
	}
	old.inserted = inserted
	if !inserted {
		old.original, old.digitized, old.image = existingDates(data)
	}

	for _, tag := range dateTags {
		ib, err := dexif.GetOrCreateIbFromRootIb(rootIb, tag.ifdPath)
		if err != nil {
			return nil, old, fmt.Errorf("%w: %s: %v", ErrCorruptExif, tag.ifdPath, err)
		}
		if err := ib.SetStandardWithName(tag.name, date); err != nil {
			return nil, old, fmt.Errorf("%w: %s: %v", ErrCorruptExif, tag.name, err)
		}
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, old, fmt.Errorf("%w: %v", ErrCorruptExif, err)
	}

	var out bytes.Buffer
	if err := sl.Write(&out); err != nil {
		return nil, old, fmt.Errorf("%s: %w", config.ErrPhotoWrite, err)
	}
	return out.Bytes(), old, nil
}

// exifBuilder loads the existing EXIF tags of sl into a builder, or starts an
// empty one when the JPEG has no EXIF segment (inserted is then true).
func exifBuilder(sl *jpegstructure.SegmentList) (rootIb *dexif.IfdBuilder, inserted bool, err error) {
	if _, _, err := sl.FindExif(); err != nil {
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, true, err
		}
		ti := dexif.NewTagIndex()
		return dexif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), true, nil
	}

	rootIb, err = sl.ConstructExifBuilder()
	return rootIb, false, err
}
