// Package pipeline drives one submission from intake to
// PENDING_CONFIRMATION or FAILED. Stages run sequentially, nothing is
// retried, and the pipeline is the only writer of request status and audit
// events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/github"
	"github.com/homegamesio/homedome/hub"
	"github.com/homegamesio/homedome/mailer"
	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/sandbox"
	"github.com/homegamesio/homedome/store"
)

type RequestStore interface {
	GetRequest(ctx context.Context, requestID string) (*model.PublishRequest, error)
	UpdateStatus(ctx context.Context, requestID string, from, to model.Status) error
	InsertGameVersion(ctx context.Context, v *model.GameVersion) error
	CreateVerificationCode(ctx context.Context, requestID, code string) error
}

type Fetcher interface {
	DownloadArchive(ctx context.Context, owner, repo, commit string) (*github.Build, error)
	ValidateLicense(ctx context.Context, owner, repo, approved string) error
	OwnerEmail(ctx context.Context, owner string) (string, error)
}

type Poker interface {
	Poke(ctx context.Context, sourceRoot string, msg model.PublishMessage, req *model.PublishRequest) (*sandbox.Result, error)
}

type ArtifactStore interface {
	UploadFile(ctx context.Context, key, path string) (string, error)
}

type Broadcaster interface {
	Broadcast(evt hub.Event)
}

type Pipeline struct {
	DB              RequestStore
	Audit           audit.Store
	GitHub          Fetcher
	Poker           Poker
	Storage         ArtifactStore
	Mailer          mailer.Mailer
	WS              Broadcaster
	ApprovedLicense string
}

// state is the per-submission scratch carried between steps.
type state struct {
	msg           model.PublishMessage
	req           *model.PublishRequest
	build         *github.Build
	squishVersion string
	artifactKey   string
}

type step struct {
	name string
	fn   func(ctx context.Context, st *state, trail *audit.Trail) error
}

// Run processes one submission to a terminal outcome for this pass. The
// request ID is the idempotency key: anything not in SUBMITTED is skipped,
// so redelivered messages never re-run a pipeline.
func (p *Pipeline) Run(ctx context.Context, msg model.PublishMessage) error {
	req, err := p.DB.GetRequest(ctx, msg.RequestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", msg.RequestID, err)
	}
	if req.Status != model.StatusSubmitted {
		if req.Status.Terminal() {
			log.Printf("pipeline: request %s already finished (%s)", req.RequestID, req.Status)
		} else {
			log.Printf("pipeline: skipping request %s in status %s (redelivery?)", req.RequestID, req.Status)
		}
		return nil
	}

	if err := p.DB.UpdateStatus(ctx, req.RequestID, model.StatusSubmitted, model.StatusProcessing); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			log.Printf("pipeline: request %s claimed elsewhere", req.RequestID)
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}
	req.Status = model.StatusProcessing

	st := &state{msg: msg, req: req}
	defer st.cleanup()

	trail := audit.NewTrail(p.Audit, req.RequestID)

	steps := []step{
		{name: "download", fn: p.download},
		{name: "license", fn: p.license},
		{name: "poke", fn: p.poke},
		{name: "upload", fn: p.upload},
		{name: "verify", fn: p.verify},
	}

	for _, s := range steps {
		p.broadcast(hub.Event{Type: "publish.step", RequestID: req.RequestID, Payload: map[string]string{
			"step": s.name, "status": "running",
		}})
		if err := s.fn(ctx, st, trail); err != nil {
			p.fail(ctx, st, trail, s.name, err)
			return err
		}
		p.broadcast(hub.Event{Type: "publish.step", RequestID: req.RequestID, Payload: map[string]string{
			"step": s.name, "status": "complete",
		}})
	}

	if err := p.DB.UpdateStatus(ctx, req.RequestID, model.StatusProcessing, model.StatusPendingConfirmation); err != nil {
		return fmt.Errorf("mark pending confirmation: %w", err)
	}
	p.broadcast(hub.Event{Type: "publish.pending", RequestID: req.RequestID, Payload: map[string]string{
		"squishVersion": st.squishVersion,
	}})
	log.Printf("pipeline: request %s pending confirmation (squish %s)", req.RequestID, st.squishVersion)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, st *state, trail *audit.Trail, stepName string, cause error) {
	if isProtocolFault(cause) {
		// The harness contract broke. This is an internal fault, not a bad
		// submission; surface it to operators separately from the failure.
		log.Printf("ALERT: pipeline: request %s: sandbox protocol fault: %v", st.req.RequestID, cause)
		if err := trail.Emit(ctx, audit.EventError, cause.Error()); err != nil {
			log.Printf("pipeline: emit ERROR event: %v", err)
		}
	}
	if err := trail.Emit(ctx, audit.EventFailure, cause.Error()); err != nil {
		log.Printf("pipeline: emit FAILURE event: %v", err)
	}
	if err := p.DB.UpdateStatus(ctx, st.req.RequestID, model.StatusProcessing, model.StatusFailed); err != nil {
		log.Printf("pipeline: mark failed: %v", err)
	}
	p.broadcast(hub.Event{Type: "publish.failed", RequestID: st.req.RequestID, Payload: map[string]string{
		"step":  stepName,
		"error": cause.Error(),
	}})
	log.Printf("pipeline: request %s failed at %s: %v", st.req.RequestID, stepName, cause)
}

func isProtocolFault(err error) bool {
	var multi *sandbox.MultiVerdictError
	return errors.Is(err, sandbox.ErrNoVerdict) || errors.As(err, &multi)
}

func (p *Pipeline) broadcast(evt hub.Event) {
	if p.WS != nil {
		p.WS.Broadcast(evt)
	}
}

func (st *state) cleanup() {
	if st.build != nil {
		if err := os.RemoveAll(st.build.Dir); err != nil {
			log.Printf("pipeline: cleanup %s: %v", st.build.Dir, err)
		}
	}
}
