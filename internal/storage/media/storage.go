package media

import (
	"context"
	"crypto/md5"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Storage guarda anexos baixados do WhatsApp em disco, servidos pela
// API via /api/media. Arquivos expiram após o TTL configurado.
type Storage struct {
	baseDir string
	ttl     time.Duration
	log     *zap.Logger
	mu      sync.RWMutex
}

func NewStorage(baseDir string, ttl time.Duration, log *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("criar diretório de mídia: %w", err)
	}

	s := &Storage{
		baseDir: baseDir,
		ttl:     ttl,
		log:     log,
	}

	go s.cleanupLoop()

	return s, nil
}

func (s *Storage) Save(ctx context.Context, connectionID, messageID string, data []byte, mimetype string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connDir := filepath.Join(s.baseDir, connectionID)
	if err := os.MkdirAll(connDir, 0755); err != nil {
		return "", fmt.Errorf("criar diretório da conexão: %w", err)
	}

	hash := md5.Sum(data)
	ext := extensionFromMimetype(mimetype)
	mediaID := fmt.Sprintf("%s_%x%s", messageID, hash[:4], ext)

	filePath := filepath.Join(connDir, mediaID)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("salvar arquivo: %w", err)
	}

	s.log.Info("mídia salva",
		zap.String("connection_id", connectionID),
		zap.String("media_id", mediaID),
		zap.Int("size", len(data)),
		zap.String("mimetype", mimetype),
	)

	return mediaID, nil
}

func (s *Storage) Get(ctx context.Context, connectionID, mediaID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// mediaID vem da URL; nunca deixar escapar do diretório base.
	if strings.Contains(mediaID, "/") || strings.Contains(mediaID, "..") {
		return nil, fmt.Errorf("mídia não encontrada")
	}

	filePath := filepath.Join(s.baseDir, connectionID, mediaID)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("mídia não encontrada")
		}
		return nil, fmt.Errorf("ler arquivo: %w", err)
	}

	return data, nil
}

func (s *Storage) cleanupLoop() {
	if s.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		s.cleanup()
	}
}

func (s *Storage) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	removed := 0

	filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})

	if removed > 0 {
		s.log.Info("mídias expiradas removidas", zap.Int("count", removed))
	}
}

func extensionFromMimetype(mimetype string) string {
	switch {
	case strings.HasPrefix(mimetype, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mimetype, "image/png"):
		return ".png"
	case strings.HasPrefix(mimetype, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mimetype, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(mimetype, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimetype, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(mimetype, "application/pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}
