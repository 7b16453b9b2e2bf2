package vakifkatilim

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const minRecordFields = 6

var errUndecryptable = errors.New("vakifkatilim: undecryptable callback packet")

type padding int

const (
	pkcs7 padding = iota
	zeroPadded
)

// attempts are tried in this order; the bank has used each of these over time
var attempts = []struct {
	keyLen  int
	padding padding
}{
	{32, pkcs7},
	{32, zeroPadded},
	{16, pkcs7},
	{16, zeroPadded},
}

// DecryptRecord opens a callback packet: Base64(IV || AES-CBC ciphertext)
// with the key taken from SHA-256 of the shared secret. The first attempt
// yielding at least six ";" separated fields wins.
func DecryptRecord(payload, secret string) ([]string, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil || len(blob) <= aes.BlockSize || (len(blob)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, errUndecryptable
	}
	iv, ciphertext := blob[:aes.BlockSize], blob[aes.BlockSize:]
	sum := sha256.Sum256([]byte(secret))

	for _, at := range attempts {
		plain, ok := decryptCBC(sum[:at.keyLen], iv, ciphertext, at.padding)
		if !ok {
			continue
		}
		fields := strings.Split(string(plain), ";")
		if len(fields) >= minRecordFields {
			return fields, nil
		}
	}
	return nil, errUndecryptable
}

func decryptCBC(key, iv, ciphertext []byte, p padding) ([]byte, bool) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, false
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	switch p {
	case pkcs7:
		n := int(plain[len(plain)-1])
		if n == 0 || n > aes.BlockSize || n > len(plain) {
			return nil, false
		}
		if !bytes.Equal(plain[len(plain)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
			return nil, false
		}
		return plain[:len(plain)-n], true
	default:
		return bytes.TrimRight(plain, "\x00"), true
	}
}
