package clipboard

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSystem() (*System, *string) {
	var buf string
	return &System{
		readAll:  func() (string, error) { return buf, nil },
		writeAll: func(s string) error { buf = s; return nil },
	}, &buf
}

func TestSystem_RoundTrip(t *testing.T) {
	s, _ := fakeSystem()
	ctx := context.Background()

	require.NoError(t, s.WriteText(ctx, "hello"))
	got, err := s.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestSystem_EmptyIsError(t *testing.T) {
	s, _ := fakeSystem()
	_, err := s.ReadText(context.Background())
	assert.Error(t, err)
}

func TestSystem_ReadError(t *testing.T) {
	s := &System{readAll: func() (string, error) { return "", fmt.Errorf("xclip missing") }}
	_, err := s.ReadText(context.Background())
	assert.EqualError(t, err, "xclip missing")
}

func TestSystem_CancelledContext(t *testing.T) {
	s, buf := fakeSystem()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.WriteText(ctx, "x"), context.Canceled)
	assert.Empty(t, *buf)
	_, err := s.ReadText(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
