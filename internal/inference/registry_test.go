package inference

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

func TestRegistryResolvesBuiltins(t *testing.T) {
	reg := NewRegistry(false)

	fn, err := reg.Resolve(string(models.JobTypeSegmentCells))
	require.NoError(t, err)
	require.NotNil(t, fn)

	fn, err = reg.Resolve(string(models.JobTypeTissueMask))
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	reg := NewRegistry(true)
	_, err := reg.Resolve("SHARPEN")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalid))
}

func TestRegistryPrefersInstanSegWhenEnabled(t *testing.T) {
	called := false
	runner := func(tile image.Image) (*image.Gray, error) {
		called = true
		return image.NewGray(tile.Bounds()), nil
	}

	reg := NewRegistry(true)
	reg.RegisterInstanSeg(runner)

	fn, err := reg.Resolve(string(models.JobTypeSegmentCells))
	require.NoError(t, err)
	_, err = fn(image.NewGray(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRegistryIgnoresInstanSegWhenDisabled(t *testing.T) {
	runner := func(tile image.Image) (*image.Gray, error) {
		t.Fatal("runner must not be used when disabled")
		return nil, nil
	}

	reg := NewRegistry(false)
	reg.RegisterInstanSeg(runner)

	fn, err := reg.Resolve(string(models.JobTypeSegmentCells))
	require.NoError(t, err)
	_, err = fn(image.NewGray(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
}
