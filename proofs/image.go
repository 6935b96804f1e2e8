package proofs

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	// Decoders for the accepted image formats beyond JPEG.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"alerts-service/apperrors"
	"alerts-service/models"
	"alerts-service/proofstore"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

const (
	thumbMaxDimension = 300
	thumbQuality      = 80

	optimizedMaxDimension = 1200
	optimizedQuality      = 85
)

// imageProcessor stores the upload, replaces it in place with a bounded
// re-encoded primary, and writes a bounded thumbnail.
type imageProcessor struct {
	store *proofstore.Store
}

func (p *imageProcessor) Process(_ context.Context, raw RawFile) (models.Proof, error) {
	folder, name, primaryPath, err := writePrimary(p.store, raw)
	if err != nil {
		return models.Proof{}, apperrors.Processing("failed to store image", err)
	}

	img, err := decodeOriented(raw.Data)
	if err != nil {
		_ = os.Remove(primaryPath)
		return models.Proof{}, apperrors.Processing("failed to decode image", err)
	}

	// Optimized primary replaces the original through a temp file plus
	// rename, so a concurrent reader never observes a partial write.
	optimized, err := encodeBounded(img, optimizedMaxDimension, optimizedQuality)
	if err != nil {
		_ = os.Remove(primaryPath)
		return models.Proof{}, apperrors.Processing("failed to encode optimized image", err)
	}
	if err := replaceFile(primaryPath, optimized); err != nil {
		_ = os.Remove(primaryPath)
		return models.Proof{}, apperrors.Processing("failed to replace image", err)
	}

	thumbData, err := encodeBounded(img, thumbMaxDimension, thumbQuality)
	if err != nil {
		_ = os.Remove(primaryPath)
		return models.Proof{}, apperrors.Processing("failed to encode thumbnail", err)
	}
	thumbName := proofstore.ThumbnailName(folder, name)
	if err := os.WriteFile(p.store.AbsPath(proofstore.FolderThumbnails, thumbName), thumbData, 0o644); err != nil {
		_ = os.Remove(primaryPath)
		return models.Proof{}, apperrors.Processing("failed to store thumbnail", err)
	}

	log.Debugf("Image processed: %s (%d -> %d bytes)", name, len(raw.Data), len(optimized))

	thumbURL := p.store.PublicURL(proofstore.FolderThumbnails, thumbName)
	return models.Proof{
		Type:      models.ProofTypePhoto,
		URL:       p.store.PublicURL(folder, name),
		Thumbnail: &thumbURL,
		Size:      int64(len(optimized)),
	}, nil
}

// decodeOriented decodes image data and applies its EXIF orientation.
func decodeOriented(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if orientation := imageOrientation(data); orientation != 1 {
		img = correctOrientation(img, orientation)
		log.Debugf("Applied orientation correction: %d", orientation)
	}
	return img, nil
}

// encodeBounded scales the image to fit within maxDim by maxDim, never
// upscaling, and re-encodes it as JPEG at the given quality.
func encodeBounded(img image.Image, maxDim, quality int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > maxDim || height > maxDim {
		scaleX := float64(maxDim) / float64(width)
		scaleY := float64(maxDim) / float64(height)
		scale := scaleX
		if scaleY < scaleX {
			scale = scaleY
		}

		newWidth := int(float64(width) * scale)
		newHeight := int(float64(height) * scale)
		if newWidth > maxDim {
			newWidth = maxDim
		}
		if newHeight > maxDim {
			newHeight = maxDim
		}

		scaled := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// replaceFile atomically swaps the file at path with data.
func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// imageOrientation extracts the EXIF orientation from image data.
func imageOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1 // Default orientation if no EXIF data or error
	}

	orientation, err := x.Get(exif.Orientation)
	if err != nil {
		return 1 // Default orientation if orientation tag not found
	}

	orientVal, err := orientation.Int(0)
	if err != nil {
		return 1 // Default orientation if value cannot be read
	}

	return orientVal
}

// correctOrientation applies the correct orientation to the image
func correctOrientation(img image.Image, orientation int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	switch orientation {
	case 2: // Flip horizontal
		newImg := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(width-1-x, y, img.At(x, y))
			}
		}
		return newImg
	case 3: // Rotate 180
		newImg := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(width-1-x, height-1-y, img.At(x, y))
			}
		}
		return newImg
	case 4: // Flip vertical
		newImg := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(x, height-1-y, img.At(x, y))
			}
		}
		return newImg
	case 5: // Transpose (rotate 90 clockwise and flip)
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(y, width-1-x, img.At(x, y))
			}
		}
		return newImg
	case 6: // Rotate 90 clockwise
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(height-1-y, x, img.At(x, y))
			}
		}
		return newImg
	case 7: // Transverse (rotate 90 counter-clockwise and flip)
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(height-1-y, x, img.At(x, y))
			}
		}
		return newImg
	case 8: // Rotate 90 counter-clockwise
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(y, width-1-x, img.At(x, y))
			}
		}
		return newImg
	default: // Orientation 1 or unknown
		return img
	}
}
