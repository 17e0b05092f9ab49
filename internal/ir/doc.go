// Package ir is the constrained value model shared by record fields,
// event payloads and module manifest settings.
//
// ir imports nothing internal; every other package may import it.
//
// Constraints:
//   - no floats; numbers are int64
//   - "no value" is the explicit IRNull marker, never a bare nil
//   - hashes are computed over RFC 8785 canonical JSON only
package ir
