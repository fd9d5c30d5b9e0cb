// Package image stores VM heap snapshots as CBOR images.
package image

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/chazu/minigc/vm"
	"github.com/fxamacker/cbor/v2"
)

// Magic prefixes every image file.
var Magic = [4]byte{'M', 'G', 'C', 'I'}

// cborEncMode uses canonical encoding so equal snapshots encode to equal
// bytes.
var cborEncMode cbor.EncMode

// cborDecMode lifts the default array limit, which is smaller than the
// object list of a large heap.
var cborDecMode cbor.DecMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{MaxArrayElements: math.MaxInt32}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Marshal serializes a Snapshot to CBOR bytes.
func Marshal(s *vm.Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*vm.Snapshot, error) {
	var s vm.Snapshot
	if err := cborDecMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("image: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// WriteFile writes the snapshot to path, prefixed with Magic.
func WriteFile(path string, s *vm.Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("image: marshal snapshot: %w", err)
	}
	buf := make([]byte, 0, len(Magic)+len(data))
	buf = append(buf, Magic[:]...)
	buf = append(buf, data...)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a snapshot written by WriteFile.
func ReadFile(path string) (*vm.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, fmt.Errorf("image: %s: not a heap image", path)
	}
	return Unmarshal(data[len(Magic):])
}

// Load reads an image and restores a VM from it.
func Load(path string, cfg vm.Config) (*vm.VM, error) {
	s, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vm.Restore(s, cfg)
}
