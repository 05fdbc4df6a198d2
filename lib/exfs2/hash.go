// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exfs2

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// hashingReader wraps an io.Reader, feeding every byte read through a
// BLAKE3 hasher so the ingest path can log a content digest without a
// second pass over the input. The digest is never persisted on disk —
// it exists purely to make Add's log line correlatable across runs.
type hashingReader struct {
	r      io.Reader
	hasher *blake3.Hasher
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, hasher: blake3.New()}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.hasher.Write(p[:n])
	}
	return n, err
}

func (h *hashingReader) sumHex() string {
	sum := h.hasher.Sum(nil)
	return hex.EncodeToString(sum)
}
