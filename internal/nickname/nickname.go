// Package nickname produces the anonymous display names handed to chat
// participants, e.g. "calm-otter-42".
package nickname

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"brisk", "calm", "candid", "cheerful", "chill", "clever", "cozy", "daring",
	"eager", "gentle", "glowing", "humble", "keen", "lucky", "merry", "nifty",
	"plucky", "quirky", "rapid", "snug", "spry", "sunny", "swift", "vivid",
}

var animals = []string{
	"otter", "panda", "lynx", "koala", "falcon", "fox", "tiger", "badger",
	"heron", "narwhal", "yak", "eagle", "orca", "gecko", "lemur", "llama",
	"ram", "sparrow", "seal", "marten", "beaver", "ibis", "bison", "dingo",
}

// MaxSuffix is the exclusive upper bound of the numeric suffix.
const MaxSuffix = 100

// Generate returns "<adjective>-<animal>-<n>" with n in [0, MaxSuffix).
// Names are not unique; callers must tolerate collisions.
func Generate() string {
	return fmt.Sprintf("%s-%s-%d",
		adjectives[randIndex(len(adjectives))],
		animals[randIndex(len(animals))],
		randIndex(MaxSuffix))
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		return 0
	}
	return int(v.Int64())
}
