package secure

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	fileMagic = "TLS1"
	saltSize  = 16
	hkdfInfo  = "tootline-credentials-v1"
)

var (
	ErrEmptyPassphrase = errors.New("passphrase required")
	ErrCorruptFile     = errors.New("credential file is corrupt")
)

// File keeps credentials in one sealed file:
// magic | salt | nonce | XChaCha20-Poly1305(json map).
type File struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

func NewFile(path, passphrase string) (*File, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &File{path: path, passphrase: []byte(passphrase)}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, salt, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(values, salt)
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, _, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Flush removes the file; a missing file is already flushed.
func (f *File) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("flush credentials: %w", err)
	}
	return nil
}

func (f *File) deriveKey(salt []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	h := hkdf.New(sha256.New, f.passphrase, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (f *File) load() (map[string]string, []byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	header := len(fileMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(data) < header || !bytes.Equal(data[:len(fileMagic)], []byte(fileMagic)) {
		return nil, nil, ErrCorruptFile
	}
	salt := data[len(fileMagic) : len(fileMagic)+saltSize]
	nonce := data[len(fileMagic)+saltSize : header]
	key, err := f.deriveKey(salt)
	if err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	plain, err := aead.Open(nil, nonce, data[header:], []byte(fileMagic))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return values, salt, nil
}

func (f *File) save(values map[string]string, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
	}
	key, err := f.deriveKey(salt)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	plain, err := json.Marshal(values)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(aead.Seal(nil, nonce, plain, []byte(fileMagic)))

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
