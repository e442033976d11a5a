package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/server/auth"
)

// ServePath is the route prefix under which LocalStorage URLs point.
const ServePath = "/api/storage/"

// LocalStorage keeps envelopes as files in a directory and serves them
// through the backend itself, guarded by short-lived tokens.
type LocalStorage struct {
	dir      string
	host     string
	secret   []byte
	validity time.Duration
}

// NewLocalStorage creates dir if needed.
func NewLocalStorage(dir, host string, secret []byte, validity time.Duration) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{dir: dir, host: strings.TrimRight(host, "/"), secret: secret, validity: validity}, nil
}

func (s *LocalStorage) path(id string) (string, error) {
	if !common.IsMessageID(id) {
		return "", common.ErrorNotFound
	}
	return filepath.Join(s.dir, id), nil
}

// Store writes data to a temporary file and renames it into place.
func (s *LocalStorage) Store(_ context.Context, id string, data []byte) error {
	p, err := s.path(id)
	if err != nil {
		return fmt.Errorf("store %q: invalid id", id)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write envelope: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close envelope: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename envelope: %w", err)
	}
	return nil
}

// Locate returns host + ServePath + id with a fresh token attached.
func (s *LocalStorage) Locate(_ context.Context, id string) (string, error) {
	token, err := auth.GenerateToken(id, s.secret, s.validity)
	if err != nil {
		return "", fmt.Errorf("generate storage token: %w", err)
	}
	return s.host + ServePath + id + "?token=" + url.QueryEscape(token), nil
}

// Serve checks that token grants id and returns the file contents.
func (s *LocalStorage) Serve(_ context.Context, id, token string) ([]byte, error) {
	granted, err := auth.GetMessageIDFromToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	if granted != id {
		return nil, common.ErrInvalidToken
	}

	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	return data, nil
}
