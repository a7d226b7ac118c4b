package pipeline

import (
	"context"

	"github.com/homegamesio/homedome/audit"
)

func (p *Pipeline) poke(ctx context.Context, st *state, trail *audit.Trail) error {
	if err := trail.Emit(ctx, audit.EventPoke, ""); err != nil {
		return err
	}
	res, err := p.Poker.Poke(ctx, st.build.Root, st.msg, st.req)
	if err != nil {
		return err
	}
	st.squishVersion = res.SquishVersion
	return nil
}
