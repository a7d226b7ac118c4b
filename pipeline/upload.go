package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/storage"
)

// upload packages the verified tree and stores the durable artifact. The
// normalized zip lives in the run's scratch dir, so cleanup covers it.
func (p *Pipeline) upload(ctx context.Context, st *state, trail *audit.Trail) error {
	if p.Storage == nil {
		return errors.New("no artifact storage configured")
	}

	outPath := filepath.Join(st.build.Dir, "code.zip")
	if err := storage.WriteArchive(st.build.Root, outPath); err != nil {
		return err
	}

	key := storage.ArtifactKey(st.req.GameID, st.req.RequestID)
	if _, err := p.Storage.UploadFile(ctx, key, outPath); err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	st.artifactKey = key

	return trail.Emit(ctx, audit.EventUploadZip, key)
}
