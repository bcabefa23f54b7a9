// Package hash holds the checksum used to guard stored rows: CRC32-Castagnoli.
//
//	sum := hash.CRC32C(row)
package hash
