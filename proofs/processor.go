package proofs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"alerts-service/apperrors"
	"alerts-service/models"
	"alerts-service/proofstore"
)

// RawFile is one uploaded file as received at the boundary.
type RawFile struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

// Processor turns one raw upload into a stored proof record.
type Processor interface {
	Process(ctx context.Context, raw RawFile) (models.Proof, error)
}

// Pipeline selects the processing strategy for a file's declared MIME type
// once, at the boundary, and runs it.
type Pipeline struct {
	store      *proofstore.Store
	ffmpegPath string
}

func NewPipeline(store *proofstore.Store, ffmpegPath string) *Pipeline {
	return &Pipeline{store: store, ffmpegPath: ffmpegPath}
}

// ProcessorFor returns the strategy for a MIME type, or an
// UnsupportedMediaError when none applies.
func (p *Pipeline) ProcessorFor(mimeType string) (Processor, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return &imageProcessor{store: p.store}, nil
	case strings.HasPrefix(mimeType, "video/"):
		return &videoProcessor{store: p.store, ffmpegPath: p.ffmpegPath}, nil
	case strings.HasPrefix(mimeType, "audio/"):
		return &audioProcessor{store: p.store}, nil
	default:
		return nil, &apperrors.UnsupportedMediaError{MimeType: mimeType}
	}
}

// Process dispatches a single file to its strategy.
func (p *Pipeline) Process(ctx context.Context, raw RawFile) (models.Proof, error) {
	proc, err := p.ProcessorFor(raw.MimeType)
	if err != nil {
		return models.Proof{}, err
	}
	return proc.Process(ctx, raw)
}

// Cleanup removes the assets behind a proof. Used to roll back files already
// written when a later step of an alert creation fails.
func (p *Pipeline) Cleanup(proof models.Proof) {
	_, _ = p.store.Delete(proof.URL)
}

// writePrimary stores the raw bytes under the folder picked for the MIME
// type and returns the generated name and on-disk path.
func writePrimary(store *proofstore.Store, raw RawFile) (folder, name, path string, err error) {
	folder = store.DestinationFor(raw.MimeType)
	name = store.NameFor(raw.OriginalName)
	path = store.AbsPath(folder, name)
	if err = os.WriteFile(path, raw.Data, 0o644); err != nil {
		return "", "", "", fmt.Errorf("failed to store %s: %w", raw.OriginalName, err)
	}
	return folder, name, path, nil
}

// audioProcessor stores the file as-is; the thumbnail is the shared
// placeholder asset.
type audioProcessor struct {
	store *proofstore.Store
}

func (a *audioProcessor) Process(_ context.Context, raw RawFile) (models.Proof, error) {
	folder, name, path, err := writePrimary(a.store, raw)
	if err != nil {
		return models.Proof{}, apperrors.Processing("failed to store audio", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.Proof{}, apperrors.Processing("failed to stat audio", err)
	}
	thumb := a.store.PlaceholderURL()
	return models.Proof{
		Type:      models.ProofTypeAudio,
		URL:       a.store.PublicURL(folder, name),
		Thumbnail: &thumb,
		Size:      info.Size(),
	}, nil
}
