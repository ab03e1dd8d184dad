package photo

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder for previews
	"io"
	"os"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"golang.org/x/image/draw"
)

// Thumbnail writes a JPEG preview of the photo scaled to width x height.
// When only one side is given the other follows the aspect ratio; when neither
// is given the preview keeps the original size.
func (s *DirStore) Thumbnail(ctx context.Context, name string, width, height int, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.Path(name)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrPhotoRead, err)
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupported, config.ErrImageDecode, err)
	}

	dw, dh := fitSize(src.Bounds(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	if err := jpeg.Encode(w, dst, &jpeg.Options{Quality: config.ThumbnailQuality}); err != nil {
		return fmt.Errorf("%s: %w", config.ErrImageEncode, err)
	}
	return nil
}

// fitSize computes the preview size. Missing sides are derived from the
// source aspect ratio (truncated) and every side is kept in [1, MaxThumbnailSide].
func fitSize(src image.Rectangle, width, height int) (int, int) {
	sw, sh := src.Dx(), src.Dy()
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}

	switch {
	case width == 0 && height == 0:
		width, height = sw, sh
	case height == 0:
		height = int(float64(width) * float64(sh) / float64(sw))
	case width == 0:
		width = int(float64(height) * float64(sw) / float64(sh))
	}

	return clampSide(width), clampSide(height)
}

func clampSide(v int) int {
	return max(1, min(v, config.MaxThumbnailSide))
}
