package deploy

import (
	"encoding/json"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// NewPayerKeyFile generates a keypair and writes it to a new file in dir, in the
// JSON byte array format read by the solana CLI.
func NewPayerKeyFile(dir string) (solana.PrivateKey, string, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate payer key")
	}
	f, err := os.CreateTemp(dir, "payer-*.json")
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create payer key file")
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, "", err
	}
	if err := WriteKeypairFile(path, key); err != nil {
		return nil, "", err
	}
	return key, path, nil
}

// WriteKeypairFile writes key as a JSON array of its 64 bytes, readable only by the owner.
func WriteKeypairFile(path string, key solana.PrivateKey) error {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	b, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, b, 0o600), "failed to write key file %s", path)
}

// ReadKeypairFile reads a keypair written by solana-keygen or WriteKeypairFile.
func ReadKeypairFile(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read key file %s", path)
	}
	return key, nil
}
