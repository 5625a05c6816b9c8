package boltdb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_ClientID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id, err := s.ClientID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = uuid.Parse(id)
	require.NoError(t, err)

	// The identity is minted once and stays stable.
	again, err := s.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestStorage_Watermark(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	mark, err := s.Watermark(ctx)
	require.NoError(t, err)
	assert.Zero(t, mark)

	require.NoError(t, s.SetWatermark(ctx, 42))

	mark, err = s.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), mark)
}

func TestStorage_Watermark_NeverMovesBackwards(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetWatermark(ctx, 42))
	require.NoError(t, s.SetWatermark(ctx, 7))

	mark, err := s.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), mark)
}
