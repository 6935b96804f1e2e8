package proofstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"alerts-service/apperrors"

	"github.com/apex/log"
)

// Storage sub-roots under the uploads directory.
const (
	FolderPhotos     = "photos"
	FolderVideos     = "videos"
	FolderAudio      = "audio"
	FolderThumbnails = "thumbnails"
)

// PlaceholderName is the shared thumbnail asset for audio proofs.
const PlaceholderName = "audio_placeholder.jpg"

// acceptedTypes is the exact-match allow-list enforced at upload acceptance.
// Folder routing below is deliberately more permissive.
var acceptedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
	"audio/mpeg":      true,
	"audio/wav":       true,
	"audio/ogg":       true,
	"audio/webm":      true,
}

// Accepted reports whether the exact MIME type is allowed for upload.
func Accepted(mimeType string) bool {
	return acceptedTypes[mimeType]
}

// Store owns the on-disk layout of proof assets and their public URLs.
type Store struct {
	root       string
	publicBase string
}

// New creates a store rooted at dir. publicBase is the URL prefix the assets
// are served under, e.g. "/uploads".
func New(dir, publicBase string) *Store {
	return &Store{
		root:       dir,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}
}

// Root returns the on-disk root directory.
func (s *Store) Root() string { return s.root }

// EnsureFolders creates the storage sub-roots. Idempotent; called once at
// startup. Also materializes the shared audio placeholder thumbnail.
func (s *Store) EnsureFolders() error {
	for _, folder := range []string{FolderPhotos, FolderVideos, FolderAudio, FolderThumbnails} {
		if err := os.MkdirAll(filepath.Join(s.root, folder), 0o755); err != nil {
			return fmt.Errorf("failed to create %s folder: %w", folder, err)
		}
	}
	if err := s.ensurePlaceholder(); err != nil {
		return err
	}
	log.Infof("Upload folders created/verified under %s", s.root)
	return nil
}

func (s *Store) ensurePlaceholder() error {
	placeholder := filepath.Join(s.root, FolderThumbnails, PlaceholderName)
	if _, err := os.Stat(placeholder); err == nil {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	gray := color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, gray)
		}
	}
	f, err := os.Create(placeholder)
	if err != nil {
		return fmt.Errorf("failed to create audio placeholder: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("failed to encode audio placeholder: %w", err)
	}
	return nil
}

// DestinationFor picks the storage folder for a MIME type. Photos is the
// fallback for anything that is not video or audio; the strict allow-list
// lives in Accepted, not here.
func (s *Store) DestinationFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return FolderVideos
	case strings.HasPrefix(mimeType, "audio/"):
		return FolderAudio
	default:
		return FolderPhotos
	}
}

// NameFor builds a collision-resistant file name preserving the original
// extension.
func (s *Store) NameFor(originalName string) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand failure is effectively fatal elsewhere; fall back to
		// the timestamp alone rather than aborting an upload.
		log.Warnf("random suffix generation failed: %v", err)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), hex.EncodeToString(suffix), ext)
}

// AbsPath returns the on-disk path of an asset.
func (s *Store) AbsPath(folder, name string) string {
	return filepath.Join(s.root, folder, name)
}

// PublicURL returns the canonical public path of an asset.
func (s *Store) PublicURL(folder, name string) string {
	return s.publicBase + "/" + folder + "/" + name
}

// ThumbnailName maps a primary asset name in the given folder to its
// thumbnail name: thumb_<name> for photos, thumb_<name>.jpg for videos.
// Audio proofs share the fixed placeholder and track no per-file thumbnail.
func ThumbnailName(folder, name string) string {
	switch folder {
	case FolderPhotos:
		return "thumb_" + name
	case FolderVideos:
		return "thumb_" + name + ".jpg"
	default:
		return ""
	}
}

// PlaceholderURL returns the shared audio thumbnail path.
func (s *Store) PlaceholderURL() string {
	return s.PublicURL(FolderThumbnails, PlaceholderName)
}

// Delete removes the primary asset a canonical URL points at, then makes a
// best-effort attempt at its sibling thumbnail. A missing primary is not an
// error: the result is simply false. A URL matching none of the storage
// folders is an UnrecognizedAssetKindError.
func (s *Store) Delete(canonicalURL string) (bool, error) {
	var folder string
	switch {
	case strings.Contains(canonicalURL, "/"+FolderPhotos+"/"):
		folder = FolderPhotos
	case strings.Contains(canonicalURL, "/"+FolderVideos+"/"):
		folder = FolderVideos
	case strings.Contains(canonicalURL, "/"+FolderAudio+"/"):
		folder = FolderAudio
	default:
		return false, &apperrors.UnrecognizedAssetKindError{URL: canonicalURL}
	}

	name := path.Base(canonicalURL)
	primary := s.AbsPath(folder, name)
	if _, err := os.Stat(primary); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(primary); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", primary, err)
	}

	if thumbName := ThumbnailName(folder, name); thumbName != "" {
		thumb := s.AbsPath(FolderThumbnails, thumbName)
		if err := os.Remove(thumb); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to delete thumbnail %s: %v", thumb, err)
		}
	}
	return true, nil
}
