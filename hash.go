package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"runtime"
	"strconv"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

// ============================================================================
// Perceptual Hash
// ============================================================================

const (
	MsgHashDecodeFail   = "not a valid image: %v"
	MsgHashComputeFail  = "failed to compute perceptual hash: %w"
	MsgHashParseFail    = "invalid fingerprint encoding '%s': %w"
	MsgHashWidthMissing = "fingerprint is empty"

	// FingerprintHexLen is the canonical encoding width of a 64-bit pHash.
	FingerprintHexLen = 16
)

// Fingerprint is a 64-bit perceptual digest of an emoji image. The zero
// value means "not yet computed".
type Fingerprint struct {
	hash *goimagehash.ImageHash
}

func (f Fingerprint) IsZero() bool {
	return f.hash == nil
}

// String returns the canonical hex encoding, the same form stored in the
// emoji table's hash column.
func (f Fingerprint) String() string {
	if f.hash == nil {
		return ""
	}
	hex := strconv.FormatUint(f.hash.GetHash(), 16)
	for len(hex) < FingerprintHexLen {
		hex = "0" + hex
	}
	return hex
}

// ParseFingerprint reconstructs a fingerprint from its canonical hex encoding.
func ParseFingerprint(s string) (Fingerprint, error) {
	if s == "" {
		return Fingerprint{}, fmt.Errorf(MsgHashWidthMissing)
	}
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf(MsgHashParseFail, s, err)
	}
	return Fingerprint{hash: goimagehash.NewImageHash(bits, goimagehash.PHash)}, nil
}

// Distance is the Hamming distance between two fingerprints. Mismatched
// hash kinds or missing fingerprints are an error.
func Distance(a, b Fingerprint) (int, error) {
	if a.hash == nil || b.hash == nil {
		return 0, fmt.Errorf(MsgHashWidthMissing)
	}
	return a.hash.Distance(b.hash)
}

// ImageHasher is the fingerprint seam the registry hashes images through.
type ImageHasher interface {
	HashImage(ctx context.Context, data []byte) (Fingerprint, error)
}

// PerceptualHasher decodes and pHashes image bytes off the caller's
// goroutine, bounded so concurrent decodes cannot saturate the process.
type PerceptualHasher struct {
	sem *semaphore.Weighted
}

func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))}
}

type hashResult struct {
	fp  Fingerprint
	err error
}

func (p *PerceptualHasher) HashImage(ctx context.Context, data []byte) (Fingerprint, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Fingerprint{}, err
	}

	done := make(chan hashResult, 1)
	go func() {
		defer p.sem.Release(1)
		done <- computeFingerprint(data)
	}()

	select {
	case res := <-done:
		return res.fp, res.err
	case <-ctx.Done():
		return Fingerprint{}, ctx.Err()
	}
}

func computeFingerprint(data []byte) hashResult {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return hashResult{err: NewValidationError(MsgHashDecodeFail, err)}
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return hashResult{err: fmt.Errorf(MsgHashComputeFail, err)}
	}
	return hashResult{fp: Fingerprint{hash: hash}}
}
