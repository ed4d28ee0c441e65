package bbr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIncreaseSequenceNumber(t *testing.T) {
	t.Run("wraps the lower band", func(t *testing.T) {
		require.Equal(t, uint8(0), IncreaseSequenceNumber(126))
		require.Equal(t, uint8(0), IncreaseSequenceNumber(127))
	})
	t.Run("wraps the upper band", func(t *testing.T) {
		require.Equal(t, uint8(128), IncreaseSequenceNumber(254))
		require.Equal(t, uint8(128), IncreaseSequenceNumber(255))
	})
	t.Run("increments everything else", func(t *testing.T) {
		for i := 0; i < 256; i++ {
			v := uint8(i)
			switch v {
			case 126, 127, 254, 255:
				continue
			}
			require.Equal(t, v+1, IncreaseSequenceNumber(v))
		}
	})
}
