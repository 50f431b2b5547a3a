// Copyright (c) 2019 IoTeX Foundation
// This is an alpha (internal) release and is not suitable for production. This source code is provided 'as is' and no
// warranties are given as to title or non-infringement, merchantability or fitness for purpose and, to the extent
// permitted by law, all liability for your use of the code is disclaimed. This source code is governed by Apache
// License 2.0 that can be found in the LICENSE file.

package compress

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// compress algorithm
const (
	Gzip   = "Gzip"
	Snappy = "Snappy"
)

// ErrInputEmpty is the error for an empty input
var ErrInputEmpty = errors.New("input cannot be empty")

// Compress compresses the input bytes with the named algorithm
func Compress(value []byte, compress string) ([]byte, error) {
	if value == nil {
		return nil, ErrInputEmpty
	}
	switch compress {
	case Gzip:
		return compGzip(value)
	case Snappy:
		return snappy.Encode(nil, value), nil
	default:
		panic("unsupported compression " + compress)
	}
}

// Decompress uncompresses the input bytes with the named algorithm
func Decompress(value []byte, compress string) ([]byte, error) {
	switch compress {
	case Gzip:
		return decompGzip(value)
	case Snappy:
		if len(value) == 0 {
			return nil, ErrInputEmpty
		}
		return snappy.Decode(nil, value)
	default:
		panic("unsupported compression " + compress)
	}
}

func compGzip(data []byte) ([]byte, error) {
	var bb bytes.Buffer
	w, err := gzip.NewWriterLevel(&bb, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

func decompGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
