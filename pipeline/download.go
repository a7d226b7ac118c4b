package pipeline

import (
	"context"

	"github.com/homegamesio/homedome/audit"
)

func (p *Pipeline) download(ctx context.Context, st *state, trail *audit.Trail) error {
	if err := trail.Emit(ctx, audit.EventDownload, ""); err != nil {
		return err
	}
	build, err := p.GitHub.DownloadArchive(ctx, st.req.RepoOwner, st.req.RepoName, st.req.CommitHash)
	if err != nil {
		return err
	}
	st.build = build
	return nil
}
