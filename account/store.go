package account

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store is a read-only source of account definitions.
type Store interface {
	Load(ctx context.Context) ([]*Account, error)
}

// FileStore reads accounts from a YAML file:
//
//	accounts:
//	  - id: main
//	    display_name: Main account
//	    project_id: 7f1c...
//	    enabled: true
//	    tokens: ["ya29.a0...", "ya29.b1..."]
type FileStore struct {
	path string
}

// NewFileStore 创建基于 YAML 文件的账号存储
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileAccounts struct {
	Accounts []fileAccount `yaml:"accounts"`
}

type fileAccount struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	ProjectID   string   `yaml:"project_id"`
	Enabled     *bool    `yaml:"enabled"`
	Tokens      []string `yaml:"tokens"`
}

// Load 实现 Store.Load
func (s *FileStore) Load(ctx context.Context) ([]*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var doc fileAccounts
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	accounts := make([]*Account, 0, len(doc.Accounts))
	for _, fa := range doc.Accounts {
		acc := &Account{
			ID:          fa.ID,
			DisplayName: fa.DisplayName,
			ProjectID:   fa.ProjectID,
			Enabled:     fa.Enabled == nil || *fa.Enabled,
		}
		for _, v := range fa.Tokens {
			acc.Tokens = append(acc.Tokens, Token{Value: v})
		}
		if err := acc.Validate(); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// StaticStore serves a fixed account list. Useful for embedding callers and tests.
type StaticStore []*Account

// Load 实现 Store.Load
func (s StaticStore) Load(ctx context.Context) ([]*Account, error) {
	out := make([]*Account, len(s))
	copy(out, s)
	return out, nil
}
