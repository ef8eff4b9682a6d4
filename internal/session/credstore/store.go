// Package credstore persiste os blobs de credenciais de sessão em
// disco, cifrados em repouso. O blob é opaco: a camada de protocolo o
// escreve e o lê, ninguém mais o interpreta.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/pkg/crypto"
)

var errInvalidConnectionID = errors.New("credstore: id de conexão inválido")

// Store grava um arquivo por conexão sob baseDir. Escritas são
// atômicas (arquivo temporário + rename) e serializadas por conexão.
type Store struct {
	baseDir    string
	passphrase string
	log        *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(baseDir, passphrase string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("credstore: criar diretório: %w", err)
	}
	return &Store{
		baseDir:    baseDir,
		passphrase: passphrase,
		log:        log,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Load retorna o blob decifrado da conexão. Ausência de arquivo e
// blob corrompido retornam (nil, nil): ambos os casos forçam novo
// pareamento em vez de derrubar o processo.
func (s *Store) Load(ctx context.Context, connectionID string) ([]byte, error) {
	path, err := s.path(connectionID)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(connectionID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: ler credenciais: %w", err)
	}

	plain, err := crypto.Decrypt(data, s.passphrase)
	if err != nil {
		s.log.Warn("blob de credenciais corrompido, descartando",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		return nil, nil
	}
	return plain, nil
}

func (s *Store) Save(ctx context.Context, connectionID string, creds []byte) error {
	path, err := s.path(connectionID)
	if err != nil {
		return err
	}

	sealed, err := crypto.Encrypt(creds, s.passphrase)
	if err != nil {
		return fmt.Errorf("credstore: cifrar credenciais: %w", err)
	}

	lock := s.lockFor(connectionID)
	lock.Lock()
	defer lock.Unlock()

	tmp, err := os.CreateTemp(s.baseDir, "cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: criar arquivo temporário: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("credstore: gravar credenciais: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("credstore: fechar arquivo temporário: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("credstore: efetivar credenciais: %w", err)
	}
	return nil
}

// Clear remove o blob; limpar o que não existe não é erro.
func (s *Store) Clear(ctx context.Context, connectionID string) error {
	path, err := s.path(connectionID)
	if err != nil {
		return err
	}

	lock := s.lockFor(connectionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: remover credenciais: %w", err)
	}
	return nil
}

func (s *Store) lockFor(connectionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[connectionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[connectionID] = lock
	}
	return lock
}

func (s *Store) path(connectionID string) (string, error) {
	if connectionID == "" || strings.ContainsAny(connectionID, "/\\") || strings.Contains(connectionID, "..") {
		return "", errInvalidConnectionID
	}
	return filepath.Join(s.baseDir, connectionID+".cred"), nil
}
