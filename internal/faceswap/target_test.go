package faceswap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	target, err := ResolveTarget(extSniffer{}, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: TargetImage, Path: "photo.jpg"}, target)

	target, err = ResolveTarget(extSniffer{}, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, TargetVideo, target.Kind)
	assert.Equal(t, "video", target.Kind.String())

	_, err = ResolveTarget(extSniffer{}, "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedTarget)
}
