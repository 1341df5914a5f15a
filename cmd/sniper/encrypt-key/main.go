// Command encrypt-key encrypts a trading key for wallet.encrypted_private_key.
//
//	SNIPER_WALLET_PASSPHRASE=... go run ./cmd/sniper/encrypt-key -key 0x...
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/apmfree78/snipper-sub000/pkg/wallet"
)

func main() {
	keyHex := flag.String("key", "", "Hex private key to encrypt (generated when empty)")
	flag.Parse()

	passphrase := os.Getenv("SNIPER_WALLET_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprintln(os.Stderr, "SNIPER_WALLET_PASSPHRASE must be set")
		os.Exit(1)
	}

	var raw []byte
	if *keyHex == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
			os.Exit(1)
		}
		raw = crypto.FromECDSA(key)
	} else {
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(*keyHex), "0x"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
			os.Exit(1)
		}
		raw = b
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
		os.Exit(1)
	}

	encrypted, err := wallet.EncryptPrivateKey(raw, passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encrypt key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("address:               %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Printf("encrypted_private_key: %s\n", encrypted)
}
