// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/loomchat/loom/lib/codec"
)

// magic identifies a Loom checkpoint file. The trailing digit is the
// format version — bump it when the envelope layout changes.
var magic = []byte("loomckp1")

// checksumSize is the size of the BLAKE3 digest stored in the
// envelope header.
const checksumSize = 32

// ErrCorrupt is returned by Load when the file exists but its magic,
// checksum, or payload fail verification. A corrupt checkpoint means
// the caller should discard it and resync from scratch.
var ErrCorrupt = errors.New("checkpoint: file is corrupt")

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder
// are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("checkpoint: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("checkpoint: zstd decoder initialization failed: " + err.Error())
	}
}

// Save atomically writes payload to path. The payload is encoded as
// deterministic CBOR, compressed with zstd, and prefixed with a
// BLAKE3 checksum. The file is written to a temporary location in the
// same directory, fsynced for durability, and renamed into place.
// Readers never see a partial write.
//
// The file is created with mode 0600. The parent directory must
// already exist.
func Save(path string, payload any) error {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("checkpoint: encoding payload: %w", err)
	}

	compressed := zstdEncoder.EncodeAll(encoded, nil)
	checksum := blake3.Sum256(compressed)

	data := make([]byte, 0, len(magic)+checksumSize+len(compressed))
	data = append(data, magic...)
	data = append(data, checksum[:]...)
	data = append(data, compressed...)

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("checkpoint: creating temporary file: %w", err)
	}

	// Write, sync, close — in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("checkpoint: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("checkpoint: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("checkpoint: closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("checkpoint: renaming into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss
	// between the rename and the OS flushing directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Load reads the checkpoint at path and decodes it into payload.
// Returns an error satisfying errors.Is(err, fs.ErrNotExist) when no
// checkpoint exists, and an error satisfying errors.Is(err,
// ErrCorrupt) when the file fails magic, checksum, or decode
// verification.
func Load(path string, payload any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("checkpoint: reading %s: %w", path, err)
	}

	if len(data) < len(magic)+checksumSize {
		return fmt.Errorf("%w: %s: truncated header (%d bytes)", ErrCorrupt, path, len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return fmt.Errorf("%w: %s: bad magic %q", ErrCorrupt, path, data[:len(magic)])
	}

	storedChecksum := data[len(magic) : len(magic)+checksumSize]
	compressed := data[len(magic)+checksumSize:]

	checksum := blake3.Sum256(compressed)
	if !bytes.Equal(checksum[:], storedChecksum) {
		return fmt.Errorf("%w: %s: checksum mismatch", ErrCorrupt, path)
	}

	encoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: zstd decompress: %v", ErrCorrupt, path, err)
	}

	if err := codec.Unmarshal(encoded, payload); err != nil {
		return fmt.Errorf("%w: %s: decoding payload: %v", ErrCorrupt, path, err)
	}
	return nil
}
