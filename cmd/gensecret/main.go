package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

// Prints random hex secrets: SECRET_KEY or entries for API_KEYS
func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "b", SecretKeyBytesLen, "Secret length in bytes")
	count := fs.IntP("count", "n", 1, "How many secrets to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < 16 {
		return fmt.Errorf("secret shorter than 16 bytes is too weak")
	}
	if *count < 1 {
		return fmt.Errorf("count must be positive")
	}

	for range *count {
		b := make([]byte, *size)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, hex.EncodeToString(b)); err != nil {
			return err
		}
	}
	return nil
}
