package crypto_test

import (
	"bytes"
	"testing"

	"github.com/tamalebot/tamalebot-core/internal/core/crypto"
)

func makeKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := makeKey(t)
	plaintext := []byte("super-secret-api-key-value-123")

	ciphertext, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext should not equal plaintext")
	}

	recovered, err := crypto.Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Errorf("recovered %q, want %q", recovered, plaintext)
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	key := makeKey(t)
	plaintext := []byte("same plaintext")

	c1, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("first Encrypt: %v", err)
	}
	c2, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("second Encrypt: %v", err)
	}
	if bytes.Equal(c1, c2) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestEncryptInvalidKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33} {
		if _, err := crypto.Encrypt(make([]byte, size), []byte("data")); err == nil {
			t.Errorf("expected error for key size %d", size)
		}
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := makeKey(t)
	ciphertext, err := crypto.Encrypt(key, []byte("tamper test"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := crypto.Decrypt(key, ciphertext); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1 := makeKey(t)
	key2 := make([]byte, crypto.KeySize)
	for i := range key2 {
		key2[i] = byte(i + 100)
	}

	ciphertext, err := crypto.Encrypt(key1, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := crypto.Decrypt(key2, ciphertext); err == nil {
		t.Fatal("expected error when decrypting with the wrong key")
	}
}

func TestDecryptTooShort(t *testing.T) {
	if _, err := crypto.Decrypt(makeKey(t), []byte("short")); err == nil {
		t.Fatal("expected error for too-short ciphertext")
	}
}

func TestEncryptDecryptEmptyPlaintext(t *testing.T) {
	key := makeKey(t)
	ciphertext, err := crypto.Encrypt(key, []byte{})
	if err != nil {
		t.Fatalf("Encrypt empty: %v", err)
	}
	recovered, err := crypto.Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt empty: %v", err)
	}
	if len(recovered) != 0 {
		t.Errorf("expected empty plaintext, got %q", recovered)
	}
}
