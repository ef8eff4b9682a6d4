package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte(`{"jid":"5531999990000.0:1@s.whatsapp.net"}`)

	encrypted, err := Encrypt(plaintext, "chave-de-teste")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Fatal("ciphertext contém plaintext")
	}

	decrypted, err := Decrypt(encrypted, "chave-de-teste")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("roundtrip = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	encrypted, err := Encrypt([]byte("segredo"), "chave-a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(encrypted, "chave-b"); err == nil {
		t.Fatal("esperado erro com chave incorreta")
	}
}

func TestDecryptCorrupted(t *testing.T) {
	encrypted, err := Encrypt([]byte("segredo"), "chave")
	if err != nil {
		t.Fatal(err)
	}
	encrypted[len(encrypted)-1] ^= 0xFF
	if _, err := Decrypt(encrypted, "chave"); err == nil {
		t.Fatal("esperado erro com blob corrompido")
	}

	if _, err := Decrypt([]byte{0x01, 0x02}, "chave"); err == nil {
		t.Fatal("esperado erro com blob truncado")
	}
}
