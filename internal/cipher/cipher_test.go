package cipher

import (
	"bytes"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexanet/configbot/internal/apperr"
	"golang.org/x/crypto/pbkdf2"
)

func TestRoundTrip(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		var c *Codec
		var err error
		if legacy {
			c, err = NewLegacy("test-passphrase")
		} else {
			c, err = New("test-passphrase")
		}
		if err != nil {
			t.Fatalf("new codec: %v", err)
		}
		for _, size := range []int{0, 1, 15, 16, 17, 1024} {
			plain := bytes.Repeat([]byte{byte(size)}, size)
			out, errEnc := c.Encrypt(plain)
			if errEnc != nil {
				t.Fatalf("encrypt size=%d legacy=%v: %v", size, legacy, errEnc)
			}
			got, errDec := c.Decrypt(out)
			if errDec != nil {
				t.Fatalf("decrypt size=%d legacy=%v: %v", size, legacy, errDec)
			}
			if !bytes.Equal(got, plain) {
				t.Fatalf("expected round trip for size=%d legacy=%v", size, legacy)
			}
		}
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	c, _ := NewLegacy("p")
	a, _ := c.Encrypt([]byte("same input"))
	b, _ := c.Encrypt([]byte("same input"))
	if bytes.Equal(a[:aes.BlockSize], b[:aes.BlockSize]) {
		t.Fatalf("expected distinct IVs")
	}
}

func TestLegacyLayoutIsIVThenCiphertext(t *testing.T) {
	c, _ := NewLegacy("nexanet-secure-key-2024")
	plain := []byte(`{"server":"vpn.example"}`)
	out, err := c.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(out) != aes.BlockSize+32 {
		t.Fatalf("expected len=%d, got %d", aes.BlockSize+32, len(out))
	}

	key := pbkdf2.Key([]byte("nexanet-secure-key-2024"), []byte("nexanet_salt_123"), 100000, 32, sha256.New)
	block, _ := aes.NewCipher(key)
	body := make([]byte, len(out)-aes.BlockSize)
	stdcipher.NewCBCDecrypter(block, out[:aes.BlockSize]).CryptBlocks(body, out[aes.BlockSize:])
	if !bytes.HasPrefix(body, plain) {
		t.Fatalf("expected independent decryption to recover plaintext")
	}
}

func TestV2ReadsLegacyBlobs(t *testing.T) {
	legacy, _ := NewLegacy("shared")
	current, _ := New("shared")
	out, _ := legacy.Encrypt([]byte("old blob"))
	got, err := current.Decrypt(out)
	if err != nil {
		t.Fatalf("decrypt legacy with v2 codec: %v", err)
	}
	if string(got) != "old blob" {
		t.Fatalf("expected %q, got %q", "old blob", got)
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	c, _ := New("p")
	plain := bytes.Repeat([]byte("abcdefgh"), 8)
	out, _ := c.Encrypt(plain)
	headerLen := len(magicV2) + saltSize + aes.BlockSize
	for _, idx := range []int{headerLen, len(out) - 1, len(out) - aes.BlockSize - 1} {
		tampered := append([]byte(nil), out...)
		tampered[idx] ^= 0x5a
		got, err := c.Decrypt(tampered)
		if err == nil && bytes.Equal(got, plain) {
			t.Fatalf("expected tampering at %d to be visible", idx)
		}
		if err != nil && !errors.Is(err, apperr.ErrDecryptionFailed) {
			t.Fatalf("expected ErrDecryptionFailed, got %v", err)
		}
	}
}

func TestStreamRoundTrip(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		c, err := New("stream-passphrase")
		if legacy {
			c, err = NewLegacy("stream-passphrase")
		}
		if err != nil {
			t.Fatalf("new codec: %v", err)
		}
		if c.Legacy() != legacy {
			t.Fatalf("expected Legacy()=%v, got %v", legacy, c.Legacy())
		}
		plain := bytes.Repeat([]byte("config-line\n"), 40)
		var enc bytes.Buffer
		if errEnc := c.EncryptStream(bytes.NewReader(plain), &enc); errEnc != nil {
			t.Fatalf("encrypt stream legacy=%v: %v", legacy, errEnc)
		}
		var dec bytes.Buffer
		if errDec := c.DecryptStream(bytes.NewReader(enc.Bytes()), &dec); errDec != nil {
			t.Fatalf("decrypt stream legacy=%v: %v", legacy, errDec)
		}
		if !bytes.Equal(dec.Bytes(), plain) {
			t.Fatalf("expected stream round trip legacy=%v", legacy)
		}

		truncated := enc.Bytes()[:enc.Len()-5]
		if errDec := c.DecryptStream(bytes.NewReader(truncated), &bytes.Buffer{}); !errors.Is(errDec, apperr.ErrDecryptionFailed) {
			t.Fatalf("expected ErrDecryptionFailed for truncated stream legacy=%v, got %v", legacy, errDec)
		}
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	c, _ := New("p")
	for _, data := range [][]byte{nil, []byte("short"), bytes.Repeat([]byte{1}, 33)} {
		if _, err := c.Decrypt(data); !errors.Is(err, apperr.ErrDecryptionFailed) {
			t.Fatalf("expected ErrDecryptionFailed for len=%d, got %v", len(data), err)
		}
	}
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	a, _ := NewLegacy("right")
	b, _ := NewLegacy("wrong")
	out, _ := a.Encrypt([]byte("secret config body"))
	got, err := b.Decrypt(out)
	if err == nil && string(got) == "secret config body" {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	c, _ := New("p")
	src := filepath.Join(dir, "plain.hc")
	enc := filepath.Join(dir, "config_x.hc.enc")
	dec := filepath.Join(dir, "out.hc")
	if err := os.WriteFile(src, []byte("payload"), 0o600); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := c.EncryptFile(src, enc); err != nil {
		t.Fatalf("encrypt file: %v", err)
	}
	if err := c.DecryptFile(enc, dec); err != nil {
		t.Fatalf("decrypt file: %v", err)
	}
	got, _ := os.ReadFile(dec)
	if string(got) != "payload" {
		t.Fatalf("expected payload, got %q", got)
	}

	bad := filepath.Join(dir, "bad.enc")
	_ = os.WriteFile(bad, []byte("not a ciphertext"), 0o600)
	failed := filepath.Join(dir, "failed.hc")
	if err := c.DecryptFile(bad, failed); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
	if _, err := os.Stat(failed); !os.IsNotExist(err) {
		t.Fatalf("expected no output file after failed decrypt")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("expected no temp leftovers, found %s", e.Name())
		}
	}

	if err := c.EncryptFile(filepath.Join(dir, "missing"), enc); !errors.Is(err, apperr.ErrIO) {
		t.Fatalf("expected ErrIO for missing source, got %v", err)
	}
}

func TestNew_RejectsEmptyPassphrase(t *testing.T) {
	if _, err := New(""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
