package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Access tokens are signed with HMAC-SHA256: 32 bytes is the hash size
const defaultSecretKeyBytesLen = 32

func main() {
	fs := pflag.NewFlagSet("gensecret", pflag.ExitOnError)
	n := fs.IntP("bytes", "n", defaultSecretKeyBytesLen, "Secret key length in bytes")
	_ = fs.Parse(os.Args[1:])

	if *n < defaultSecretKeyBytesLen {
		fmt.Fprintf(os.Stderr, "secret key must be at least %d bytes long\n", defaultSecretKeyBytesLen)
		os.Exit(1)
	}

	b := make([]byte, *n)

	_, err := rand.Read(b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
