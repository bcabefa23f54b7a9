// Package conv provides checked integer conversions for decoding untrusted
// bytes read back from the store (lengths, counts, sort ids).
package conv
