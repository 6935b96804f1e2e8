package proofs

import (
	"context"
	"os"
	"os/exec"

	"alerts-service/apperrors"
	"alerts-service/models"
	"alerts-service/proofstore"

	"github.com/apex/log"
)

// videoProcessor stores the upload and extracts one representative frame as
// the thumbnail. Frame extraction failures degrade to a nil thumbnail
// instead of failing the proof; the primary asset is already stored.
type videoProcessor struct {
	store      *proofstore.Store
	ffmpegPath string
}

func (p *videoProcessor) Process(ctx context.Context, raw RawFile) (models.Proof, error) {
	folder, name, primaryPath, err := writePrimary(p.store, raw)
	if err != nil {
		return models.Proof{}, apperrors.Processing("failed to store video", err)
	}

	proof := models.Proof{
		Type: models.ProofTypeVideo,
		URL:  p.store.PublicURL(folder, name),
		Size: int64(len(raw.Data)),
	}

	thumbName := proofstore.ThumbnailName(folder, name)
	thumbPath := p.store.AbsPath(proofstore.FolderThumbnails, thumbName)
	if err := p.extractFrame(ctx, primaryPath, thumbPath); err != nil {
		log.Warnf("Frame extraction failed for %s, keeping proof without thumbnail: %v", name, err)
		_ = os.Remove(thumbPath)
		return proof, nil
	}

	thumbURL := p.store.PublicURL(proofstore.FolderThumbnails, thumbName)
	proof.Thumbnail = &thumbURL
	return proof, nil
}

func (p *videoProcessor) extractFrame(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-y",
		"-i", src,
		"-frames:v", "1",
		"-vf", "scale=320:240",
		dst,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}
