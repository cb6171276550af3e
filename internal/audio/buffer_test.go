package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelView(t *testing.T) {
	stereo := Buffer{
		Samples:    []float64{0.1, -0.1, 0.2, -0.2, 0.3, -0.3},
		SampleRate: 8000,
		Channels:   2,
	}

	t.Run("extracts left", func(t *testing.T) {
		left, err := ChannelView(stereo, Left)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, left.Samples)
		assert.Equal(t, 8000, left.SampleRate)
		assert.Equal(t, 1, left.Channels)
	})

	t.Run("extracts right", func(t *testing.T) {
		right, err := ChannelView(stereo, Right)
		require.NoError(t, err)
		assert.Equal(t, []float64{-0.1, -0.2, -0.3}, right.Samples)
	})

	t.Run("does not alias source", func(t *testing.T) {
		left, err := ChannelView(stereo, Left)
		require.NoError(t, err)
		left.Samples[0] = 0.9
		assert.Equal(t, 0.1, stereo.Samples[0])
	})
}

func TestChannelView_Errors(t *testing.T) {
	tests := []struct {
		name    string
		buf     Buffer
		ch      ChannelID
		wantErr error
	}{
		{
			name:    "mono input",
			buf:     Buffer{Samples: []float64{0, 0}, SampleRate: 8000, Channels: 1},
			ch:      Left,
			wantErr: ErrChannelMismatch,
		},
		{
			name:    "three channels",
			buf:     Buffer{Samples: []float64{0, 0, 0}, SampleRate: 8000, Channels: 3},
			ch:      Left,
			wantErr: ErrChannelMismatch,
		},
		{
			name:    "odd sample count",
			buf:     Buffer{Samples: []float64{0, 0, 0}, SampleRate: 8000, Channels: 2},
			ch:      Left,
			wantErr: ErrChannelMismatch,
		},
		{
			name:    "empty",
			buf:     Buffer{SampleRate: 8000, Channels: 2},
			ch:      Left,
			wantErr: ErrInvalidAudio,
		},
		{
			name:    "unknown channel",
			buf:     Buffer{Samples: []float64{0, 0}, SampleRate: 8000, Channels: 2},
			ch:      ChannelID(5),
			wantErr: ErrInvalidAudio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChannelView(tt.buf, tt.ch)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// interleave builds a stereo buffer from two mono buffers of equal length.
func interleave(t *testing.T, left, right Buffer) Buffer {
	t.Helper()
	require.Equal(t, left.SampleRate, right.SampleRate)
	require.Len(t, right.Samples, len(left.Samples))

	out := make([]float64, 2*len(left.Samples))
	for i := range left.Samples {
		out[2*i] = left.Samples[i]
		out[2*i+1] = right.Samples[i]
	}
	return Buffer{Samples: out, SampleRate: left.SampleRate, Channels: 2}
}

func TestBuffer_FramesAndDuration(t *testing.T) {
	left := Buffer{Samples: []float64{1, 2}, SampleRate: 10, Channels: 1}
	right := Buffer{Samples: []float64{3, 4}, SampleRate: 10, Channels: 1}

	stereo := interleave(t, left, right)
	assert.Equal(t, []float64{1, 3, 2, 4}, stereo.Samples)
	assert.Equal(t, 2, stereo.Frames())
	assert.Equal(t, 200*time.Millisecond, stereo.Duration())
	assert.Zero(t, Buffer{Samples: []float64{1}}.Frames())
}

func TestChannelID_String(t *testing.T) {
	assert.Equal(t, "left", Left.String())
	assert.Equal(t, "right", Right.String())
	assert.Equal(t, "channel(7)", ChannelID(7).String())
}
