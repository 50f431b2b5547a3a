// Copyright (c) 2022 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package byteutil

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestUint64(t *testing.T) {
	input := uint64(1844674407370955161)
	byteInput := []byte{0x19, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99}
	t.Run("convert uint64 to bytes in big-endian", func(t *testing.T) {
		require.Equal(t, byteInput, Uint64ToBytesBigEndian(input))
	})

	t.Run("convert big-endian bytes to uint64", func(t *testing.T) {
		result, err := BytesToUint64BigEndian(byteInput)
		require.NoError(t, err)
		require.Equal(t, input, result)
	})

	t.Run("reject short input", func(t *testing.T) {
		_, err := BytesToUint64BigEndian(byteInput[:7])
		require.Equal(t, ErrInvalidLength, errors.Cause(err))
	})
}

func TestMust(t *testing.T) {
	require.Equal(t, []byte{1}, Must([]byte{1}, nil))
	require.Panics(t, func() { Must(nil, errors.New("boom")) })
}
