// Package aerugo defines the interfaces for the components of a
// content-addressable container image registry. The goal is to keep the
// contracts between components narrow: blobs and manifests are addressed
// exclusively by digest, tags are the only mutable pointers, and durable
// storage is consumed through a simple key-value byte store. The
// implementations of the storage, cache and protocol layers live under
// registry/.
package aerugo
