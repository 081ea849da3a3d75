package aerugo

import (
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Descriptor describes targeted content. Used in conjunction with a blob
// store, a descriptor can be used to fetch, store and target any kind of
// blob. The struct fields are aligned with the OCI descriptor so the two
// convert losslessly.
type Descriptor struct {
	// MediaType describes the type of the content. All text based formats
	// are encoded as utf-8.
	MediaType string `json:"mediaType,omitempty"`

	// Size in bytes of content.
	Size int64 `json:"size,omitempty"`

	// Digest uniquely identifies the content. A byte stream can be verified
	// against this digest.
	Digest digest.Digest `json:"digest,omitempty"`
}

// Descriptor returns the descriptor, to make it satisfy the Describable
// interface. Note that implementations of Describable are generally objects
// which have been unmarshaled from a manifest.
func (d Descriptor) Descriptor() Descriptor {
	return d
}

// FromOCIDescriptor converts an OCI image-spec descriptor into the
// registry's internal form, dropping fields the core does not track.
func FromOCIDescriptor(d v1.Descriptor) Descriptor {
	return Descriptor{
		MediaType: d.MediaType,
		Size:      d.Size,
		Digest:    d.Digest,
	}
}

// Describable is an interface for descriptors.
type Describable interface {
	Descriptor() Descriptor
}
