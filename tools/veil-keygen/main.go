// veil-keygen provisions the engine's master secret.
//
// The engine refuses to start without a secret on disk; this tool
// creates one. Rotation is not supported here: an existing secret is
// never overwritten, because proofs and nullifiers derived from it
// would become unverifiable.
//
// Usage:
//
//	go run ./tools/veil-keygen --data-dir=veilcore_data
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilswap/veilcore/internal/crypto"
)

var (
	dataDirFlag = flag.String("data-dir", "veilcore_data", "engine data directory")
	checkFlag   = flag.Bool("check", false, "only check whether a secret exists")
)

func main() {
	flag.Parse()

	keyStore, err := crypto.NewKeyStore(filepath.Join(*dataDirFlag, "keys"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open key store: %v\n", err)
		os.Exit(1)
	}

	if *checkFlag {
		if keyStore.Exists() {
			fmt.Printf("master secret present at %s\n", keyStore.Path())
			return
		}
		fmt.Println("no master secret provisioned")
		os.Exit(1)
	}

	secret, err := keyStore.Generate()
	if err != nil {
		if errors.Is(err, crypto.ErrSecretExists) {
			fmt.Fprintf(os.Stderr, "a master secret already exists at %s; refusing to overwrite\n", keyStore.Path())
		} else {
			fmt.Fprintf(os.Stderr, "failed to generate master secret: %v\n", err)
		}
		os.Exit(1)
	}
	crypto.ClearBytes(secret)

	fmt.Printf("master secret written to %s\n", keyStore.Path())
}
