package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// FileStore: 토큰을 세트별 JSON 파일로 보관하는 저장소
// PostgreSQL이 설정되지 않은 환경(로컬 인증 도구 등)에서 사용한다.
// TokenRef가 파일 경로로 해석된다.
type FileStore struct {
	refs   map[string]string // setID → 파일 경로
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore: 세트 ID → 토큰 파일 경로 매핑으로 파일 저장소를 생성한다.
func NewFileStore(refs map[string]string, logger *slog.Logger) *FileStore {
	return &FileStore{
		refs:   refs,
		logger: logger,
	}
}

// Load: 토큰 파일을 읽어 레코드를 반환한다. 파일이 없으면 (nil, nil)을 반환한다.
func (s *FileStore) Load(_ context.Context, setID string) (*Record, error) {
	path, ok := s.refs[setID]
	if !ok {
		return nil, fmt.Errorf("no token file configured for set %s", setID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	info, err := f.Stat()
	updatedAt := time.Now()
	if err == nil {
		updatedAt = info.ModTime()
	}

	return &Record{
		SetID:     setID,
		Token:     token,
		UpdatedAt: updatedAt,
	}, nil
}

// Save: 토큰을 세트의 파일에 저장한다. (0600 권한)
func (s *FileStore) Save(_ context.Context, record *Record) error {
	if record == nil || record.Token == nil {
		return fmt.Errorf("record and token must not be nil")
	}

	path, ok := s.refs[record.SetID]
	if !ok {
		return fmt.Errorf("no token file configured for set %s", record.SetID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record.Token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	s.logger.Debug("Token saved",
		slog.String("set", record.SetID),
		slog.String("file", path),
	)

	return nil
}
