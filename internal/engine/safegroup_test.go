package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/logger"
)

func TestSafeGroup_RecoversPanics(t *testing.T) {
	g, ctx := NewSafeGroup(context.Background(), logger.Nop())
	g.Go(func() error { panic("plugin exploded") })

	err := g.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin exploded")
	assert.Error(t, ctx.Err(), "the group context is cancelled")
}

func TestSafeGroup_Limit(t *testing.T) {
	g, _ := NewSafeGroup(context.Background(), logger.Nop())
	g.SetLimit(2)

	var current, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			n := current.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			<-release
			current.Add(-1)
			return nil
		})
	}
	close(release)
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			n := current.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			current.Add(-1)
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
