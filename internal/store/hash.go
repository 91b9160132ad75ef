package store

import (
	"crypto/sha256"
	"fmt"
)

// ComputeSignatureHash computes a deterministic hash of an API signature.
// Parameter and default order is significant, since Python binds them by
// position.
func ComputeSignatureHash(name, kind string, params, defaults []string) string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	for i, p := range params {
		fmt.Fprintf(h, "param:%d:%s\n", i, p)
	}
	for i, d := range defaults {
		fmt.Fprintf(h, "default:%d:%s\n", i, d)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
