package pipeline

import (
	"context"

	"github.com/homegamesio/homedome/audit"
)

// license gates the sandbox: a submission with a missing or unapproved
// license never reaches the poke step.
func (p *Pipeline) license(ctx context.Context, st *state, trail *audit.Trail) error {
	return p.GitHub.ValidateLicense(ctx, st.req.RepoOwner, st.req.RepoName, p.ApprovedLicense)
}
