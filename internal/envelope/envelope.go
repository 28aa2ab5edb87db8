// Package envelope implements the canonical key/value text wire format
// shared by every queue in this system: k=v lines terminated by a blank
// line, optionally AES-256-ECB encrypted, always base64 transport encoded.
//
// Wire compatibility with existing submitters requires byte-for-byte
// reproduction of the legacy ECB-AES+base64 framing — see DESIGN.md for
// why that rules out a higher-level AEAD scheme here.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations is the iteration count used to stretch a non-raw crypt
// key into 32 bytes of AES-256 key material.
const pbkdf2Iterations = 4096

// Sentinel errors classified per the error-handling design: malformed
// input is NAK'd once and discarded rather than retried.
var (
	ErrMalformed       = errors.New("envelope: malformed payload")
	ErrDecryptionFailed = errors.New("envelope: decryption failed")
)

// Key is a pre-shared AES-256 key, always exactly 32 bytes.
type Key [32]byte

// NewKey derives a 32-byte AES key from secret. A secret that is already
// exactly 32 bytes is assumed to be a raw key generated by the legacy
// truncate/zero-pad scheme in the original mod_gm_crypt_init, and is used
// as-is so existing submitters keep working unmodified. Any other length is
// stretched into 32 bytes with PBKDF2-HMAC-SHA256, letting operators supply
// an ordinary passphrase in the option record's crypt_key field instead of
// a pre-generated raw key.
func NewKey(secret []byte) Key {
	var k Key
	if len(secret) == len(k) {
		copy(k[:], secret)
		return k
	}
	derived := pbkdf2.Key(secret, []byte("checkworker-crypt-key"), pbkdf2Iterations, len(k), sha256.New)
	copy(k[:], derived)
	return k
}

// Map is the decoded form of an envelope: an ordered-on-encode set of
// key/value string pairs.
type Map map[string]string

// Encode serializes m into the wire format described in spec §4.1:
// lexicographically sorted k=v lines, newline-escaped values, a trailing
// blank line, optional AES-256-ECB encryption, then base64.
func Encode(m Map, key Key, encrypt bool) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(escape(m[k]))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	plain := buf.Bytes()

	var transportInput []byte
	if encrypt {
		ciphertext, err := encryptECB(plain, key)
		if err != nil {
			return nil, err
		}
		transportInput = ciphertext
	} else {
		transportInput = plain
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(transportInput)))
	base64.StdEncoding.Encode(encoded, transportInput)
	return encoded, nil
}

// Decode reverses Encode: base64-decode, optionally AES-256-ECB decrypt,
// split on newlines, and unescape values. Returns ErrMalformed if any
// non-blank line lacks an '=', and ErrDecryptionFailed if the ciphertext is
// empty or its length is not a multiple of the block size. The decrypted
// plaintext is not otherwise checked, so a wrong key is not reported as
// ErrDecryptionFailed.
func Decode(wire []byte, key Key, encrypted bool) (Map, error) {
	transportOutput := make([]byte, base64.StdEncoding.DecodedLen(len(wire)))
	n, err := base64.StdEncoding.Decode(transportOutput, wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	transportOutput = transportOutput[:n]

	var plain []byte
	if encrypted {
		plain, err = decryptECB(transportOutput, key)
		if err != nil {
			return nil, err
		}
		// Undo the zero-pad applied before encryption. Plaintext always ends
		// in "\n", so trailing NUL bytes are unambiguously padding.
		plain = bytes.TrimRight(plain, "\x00")
	} else {
		plain = transportOutput
	}

	return parse(plain)
}

func parse(plain []byte) (Map, error) {
	text := strings.TrimRight(string(plain), "\n")
	if text == "" {
		return Map{}, nil
	}

	m := make(Map)
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("%w: line %q has no '='", ErrMalformed, line)
		}
		m[line[:idx]] = unescape(line[idx+1:])
	}
	return m, nil
}

// escape replaces backslashes and embedded newlines so a value can never
// be mistaken for a line boundary on the wire.
func escape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

func unescape(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

// encryptECB encrypts plain under AES-256 in ECB mode, zero-padding to the
// block size. ECB leaks block-level structure; it is kept only because the
// legacy submitters on the other end of this wire format use it (see
// DESIGN.md).
func encryptECB(plain []byte, key Key) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("envelope: aes cipher: %w", err)
	}

	padded := zeroPad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out, nil
}

func decryptECB(ciphertext []byte, key Key) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a multiple of block size", ErrDecryptionFailed, len(ciphertext))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("envelope: aes cipher: %w", err)
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return out, nil
}

func zeroPad(b []byte, blockSize int) []byte {
	padLen := blockSize - len(b)%blockSize
	if padLen == blockSize && len(b) > 0 {
		padLen = 0
	}
	if padLen == 0 {
		return b
	}
	out := make([]byte, len(b)+padLen)
	copy(out, b)
	return out
}
