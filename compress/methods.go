// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package compress

import (
	"compress/lzw"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// Supported methods.
var (
	// ZLIB compresses the stream with the zlib format.
	// Every server that offers stream compression supports it.
	ZLIB = Method{Name: "zlib", Wrapper: wrapZLIB}

	// LZW compresses the stream with the Lempel-Ziv-Welch (DCLZ) format.
	// The encoder cannot be flushed, so written data may only reach the peer
	// when the layer is closed. It is suited to whole documents rather than
	// live streams, and sessions never negotiate it.
	LZW = Method{Name: "lzw", Wrapper: wrapLZW}
)

func wrapZLIB(rw io.ReadWriter) (io.ReadWriter, error) {
	w := zlib.NewWriter(rw)
	return &duplex{
		raw: rw,
		w:   w,
		// Each write is a complete chunk of XML that the peer must be able to
		// parse without waiting for more data.
		flush: w.Flush,
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return zlib.NewReader(r)
		},
	}, nil
}

func wrapLZW(rw io.ReadWriter) (io.ReadWriter, error) {
	return &duplex{
		raw: rw,
		w:   lzw.NewWriter(rw, lzw.LSB, 8),
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return lzw.NewReader(r, lzw.LSB, 8), nil
		},
	}, nil
}

// duplex compresses writes and decompresses reads on raw.
// The decompressor is created on the first read since zlib consumes its header
// immediately, and the server sends nothing until the client has restarted
// the stream.
type duplex struct {
	rm, wm sync.Mutex

	raw       io.ReadWriter
	r         io.ReadCloser
	w         io.WriteCloser
	flush     func() error
	newReader func(io.Reader) (io.ReadCloser, error)
}

func (d *duplex) Write(p []byte) (int, error) {
	d.wm.Lock()
	defer d.wm.Unlock()
	n, err := d.w.Write(p)
	if err != nil || d.flush == nil {
		return n, err
	}
	return n, d.flush()
}

func (d *duplex) Read(p []byte) (int, error) {
	d.rm.Lock()
	defer d.rm.Unlock()
	if d.r == nil {
		r, err := d.newReader(d.raw)
		if err != nil {
			return 0, err
		}
		d.r = r
	}
	return d.r.Read(p)
}

// Close finishes the compressed output and releases the decompressor.
// It does not close the underlying connection.
func (d *duplex) Close() error {
	d.wm.Lock()
	werr := d.w.Close()
	d.wm.Unlock()

	d.rm.Lock()
	defer d.rm.Unlock()
	var rerr error
	if d.r != nil {
		rerr = d.r.Close()
	}
	return errors.Join(werr, rerr)
}
