package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"filippo.io/age"
)

var ErrNoPassphrase = errors.New("encrypted file needs a passphrase")

// ReadMIDI reads a MIDI file. Names ending in .age are decrypted with the
// given passphrase first.
func ReadMIDI(fsys fs.FS, name, passphrase string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("could not read %v: %w", name, err)
	}
	if !strings.HasSuffix(name, ".age") {
		return data, nil
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%v: %w", name, ErrNoPassphrase)
	}
	return decrypt(data, passphrase)
}

func decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	id, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("could not build scrypt identity: %w", err)
	}
	plaintextReader, err := age.Decrypt(bytes.NewReader(ciphertext), id)
	if err != nil {
		return nil, fmt.Errorf("could not start decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(plaintextReader)
	if err != nil {
		return nil, fmt.Errorf("could not finish decrypting: %w", err)
	}
	return plaintext, nil
}
