package npipe

import (
	"os"
	"strconv"

	"github.com/thanhpk/randstr"
)

const (
	// NamePrefix is the namespace prefix of the names generated by [Create].
	NamePrefix = `\\.\pipe\pipe_`

	suffixLen    = 15
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateName returns a pipe name of the form
// <NamePrefix><pid>_<15 random alphanumerics>. The suffix is drawn from a
// cryptographic source, so two names collide with probability 62^-15.
func GenerateName() string {
	return NamePrefix + strconv.Itoa(os.Getpid()) + "_" + randstr.String(suffixLen, alphanumeric)
}
