package aerugo

import (
	"encoding/json"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// referencedManifest is the subset of the Docker schema2 / OCI manifest
// structure needed to discover blob references. Unknown fields are ignored
// so that both schemas, and index documents without blob references, decode
// without error.
type referencedManifest struct {
	Config    *v1.Descriptor  `json:"config,omitempty"`
	Layers    []v1.Descriptor `json:"layers,omitempty"`
	Manifests []v1.Descriptor `json:"manifests,omitempty"`
}

func manifestReferences(payload []byte) []Descriptor {
	var rm referencedManifest
	if err := json.Unmarshal(payload, &rm); err != nil {
		return nil
	}

	var refs []Descriptor
	if rm.Config != nil && rm.Config.Digest != "" {
		refs = append(refs, FromOCIDescriptor(*rm.Config))
	}
	for _, l := range rm.Layers {
		if l.Digest != "" {
			refs = append(refs, FromOCIDescriptor(l))
		}
	}
	for _, m := range rm.Manifests {
		if m.Digest != "" {
			refs = append(refs, FromOCIDescriptor(m))
		}
	}
	return refs
}
