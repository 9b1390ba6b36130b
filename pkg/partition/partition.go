// Package partition routes keys to partitions.
package partition

import (
	"github.com/spaolacci/murmur3"

	"github.com/numaproj/numadedup/pkg/changelog"
)

// Hash returns the 32 bit murmur3 hash of key.
func Hash(key changelog.Key) uint32 {
	return murmur3.Sum32([]byte(key))
}

// For returns the partition in [0, n) owning key. n must be positive.
func For(key changelog.Key, n int) int {
	return int(Hash(key) % uint32(n))
}
