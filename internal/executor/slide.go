package executor

import (
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// openSlide decodes the slide image at path. Single-level formats are
// treated as pyramid level 0.
func openSlide(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewError(models.KindNotFound, "slide %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, models.NewError(models.KindInvalid, "decode slide %s: %v", path, err)
	}
	return img, nil
}
