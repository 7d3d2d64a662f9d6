// Package cipher encrypts config blobs at rest with AES-256-CBC and a PBKDF2 key.
//
// Two layouts are understood:
//
//	legacy: IV(16) || CT                      key = PBKDF2(passphrase, fixed salt)
//	v2:     "NXC2" || salt(16) || IV(16) || CT key = PBKDF2(passphrase, salt)
//
// CBC carries no integrity check: a tampered ciphertext either fails padding
// validation or decrypts to different bytes.
package cipher

import (
	"bytes"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nexanet/configbot/internal/apperr"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 round count.
	Iterations = 100000
	keySize    = 32
	saltSize   = 16
)

// LegacySalt is the salt compiled into the legacy layout.
var LegacySalt = []byte("nexanet_salt_123")

var magicV2 = []byte("NXC2")

// Codec encrypts and decrypts whole-file buffers.
type Codec struct {
	passphrase []byte
	legacyKey  []byte
	legacy     bool // write legacy layout instead of v2
}

// New returns a codec that writes the v2 layout with a random salt per file.
// It still reads legacy blobs produced with the same passphrase.
func New(passphrase string) (*Codec, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("cipher: empty passphrase: %w", apperr.ErrInvalidInput)
	}
	return &Codec{
		passphrase: []byte(passphrase),
		legacyKey:  deriveKey([]byte(passphrase), LegacySalt),
	}, nil
}

// NewLegacy returns a codec that writes the fixed-salt layout, for deployments that
// must keep producing blobs older readers understand.
func NewLegacy(passphrase string) (*Codec, error) {
	c, err := New(passphrase)
	if err != nil {
		return nil, err
	}
	c.legacy = true
	return c, nil
}

// Legacy reports whether the codec writes the fixed-salt layout.
func (c *Codec) Legacy() bool { return c != nil && c.legacy }

func deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, Iterations, keySize, sha256.New)
}

// Encrypt returns the ciphertext of plain with a fresh random IV.
func (c *Codec) Encrypt(plain []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cipher: nil codec: %w", apperr.ErrEncryptionFailed)
	}
	if c.legacy {
		return seal(c.legacyKey, plain, nil)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("cipher: read salt: %v: %w", err, apperr.ErrEncryptionFailed)
	}
	header := make([]byte, 0, len(magicV2)+saltSize)
	header = append(header, magicV2...)
	header = append(header, salt...)
	return seal(deriveKey(c.passphrase, salt), plain, header)
}

// Decrypt reverses Encrypt for either layout.
func (c *Codec) Decrypt(data []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cipher: nil codec: %w", apperr.ErrDecryptionFailed)
	}
	if bytes.HasPrefix(data, magicV2) && len(data) >= len(magicV2)+saltSize+2*aes.BlockSize {
		salt := data[len(magicV2) : len(magicV2)+saltSize]
		plain, err := open(deriveKey(c.passphrase, salt), data[len(magicV2)+saltSize:])
		if err == nil {
			return plain, nil
		}
		// a legacy IV may start with the magic bytes
		if legacyPlain, errLegacy := open(c.legacyKey, data); errLegacy == nil {
			return legacyPlain, nil
		}
		return nil, err
	}
	return open(c.legacyKey, data)
}

func seal(key, plain, header []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aes: %v: %w", err, apperr.ErrEncryptionFailed)
	}
	padded := pkcs7Pad(plain, aes.BlockSize)

	out := make([]byte, len(header)+aes.BlockSize+len(padded))
	copy(out, header)
	iv := out[len(header) : len(header)+aes.BlockSize]
	if _, errIV := io.ReadFull(rand.Reader, iv); errIV != nil {
		return nil, fmt.Errorf("cipher: read iv: %v: %w", errIV, apperr.ErrEncryptionFailed)
	}
	stdcipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(header)+aes.BlockSize:], padded)
	return out, nil
}

func open(key, data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cipher: ciphertext length %d: %w", len(data), apperr.ErrDecryptionFailed)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aes: %v: %w", err, apperr.ErrDecryptionFailed)
	}
	iv := data[:aes.BlockSize]
	body := make([]byte, len(data)-aes.BlockSize)
	stdcipher.NewCBCDecrypter(block, iv).CryptBlocks(body, data[aes.BlockSize:])
	plain, errUnpad := pkcs7Unpad(body, aes.BlockSize)
	if errUnpad != nil {
		return nil, fmt.Errorf("cipher: %v: %w", errUnpad, apperr.ErrDecryptionFailed)
	}
	return plain, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// EncryptStream reads r to the end and writes its ciphertext to w.
func (c *Codec) EncryptStream(r io.Reader, w io.Writer) error {
	plain, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cipher: read plaintext: %v: %w", err, apperr.ErrIO)
	}
	out, err := c.Encrypt(plain)
	if err != nil {
		return err
	}
	if _, errWrite := w.Write(out); errWrite != nil {
		return fmt.Errorf("cipher: write ciphertext: %v: %w", errWrite, apperr.ErrIO)
	}
	return nil
}

// DecryptStream reads r to the end and writes its plaintext to w.
func (c *Codec) DecryptStream(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cipher: read ciphertext: %v: %w", err, apperr.ErrIO)
	}
	plain, err := c.Decrypt(data)
	if err != nil {
		return err
	}
	if _, errWrite := w.Write(plain); errWrite != nil {
		return fmt.Errorf("cipher: write plaintext: %v: %w", errWrite, apperr.ErrIO)
	}
	return nil
}

// EncryptFile encrypts src into dst. dst only appears once fully written.
func (c *Codec) EncryptFile(src, dst string) error {
	plain, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("cipher: read %s: %v: %w", src, err, apperr.ErrIO)
	}
	out, err := c.Encrypt(plain)
	if err != nil {
		return err
	}
	return writeFileAtomic(dst, out)
}

// DecryptFile decrypts src into dst. On failure dst is not created.
func (c *Codec) DecryptFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("cipher: read %s: %v: %w", src, err, apperr.ErrIO)
	}
	plain, err := c.Decrypt(data)
	if err != nil {
		return err
	}
	return writeFileAtomic(dst, plain)
}

// writeFileAtomic writes to a sibling temp file, fsyncs and renames it into place.
func writeFileAtomic(dst string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cipher: create temp: %v: %w", err, apperr.ErrIO)
	}
	tmpPath := f.Name()
	if _, errWrite := f.Write(data); errWrite != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cipher: write temp: %v: %w", errWrite, apperr.ErrIO)
	}
	if errSync := f.Sync(); errSync != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cipher: fsync: %v: %w", errSync, apperr.ErrIO)
	}
	if errClose := f.Close(); errClose != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cipher: close temp: %v: %w", errClose, apperr.ErrIO)
	}
	if errRename := os.Rename(tmpPath, dst); errRename != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cipher: rename: %v: %w", errRename, apperr.ErrIO)
	}
	return nil
}
