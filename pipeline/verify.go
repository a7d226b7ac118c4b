package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/model"
)

// verify records the version, issues the single-use confirmation code, and
// notifies the repository owner. The version stays unpublished until the
// owner's callback consumes the code.
func (p *Pipeline) verify(ctx context.Context, st *state, trail *audit.Trail) error {
	version := &model.GameVersion{
		VersionID:     uuid.New().String(),
		GameID:        st.req.GameID,
		SquishVersion: st.squishVersion,
		RequestID:     st.req.RequestID,
		PublishedBy:   st.req.Requester,
		SourceAssetID: st.artifactKey,
	}
	if err := p.DB.InsertGameVersion(ctx, version); err != nil {
		return fmt.Errorf("record game version: %w", err)
	}

	email, err := p.GitHub.OwnerEmail(ctx, st.req.RepoOwner)
	if err != nil {
		return err
	}

	code := newCode()
	if err := p.DB.CreateVerificationCode(ctx, st.req.RequestID, code); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := p.Mailer.SendConfirmation(ctx, email, code, st.req.RequestID); err != nil {
		return err
	}
	return trail.Emit(ctx, audit.EventVerify, "Sent approval email to repo owner")
}

func newCode() string {
	sum := md5.Sum([]byte(uuid.New().String()))
	return hex.EncodeToString(sum[:])
}
