package account

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAllTokensInvalid 账号下所有凭证均已被隔离
	ErrAllTokensInvalid = errors.New("all tokens of account are invalid")
	// ErrNoAccounts 没有任何启用且带凭证的账号
	ErrNoAccounts = errors.New("no enabled account with credentials")
)

// Token is one credential of an account.
type Token struct {
	Value   string `yaml:"value" json:"-"`
	Invalid bool   `yaml:"-" json:"invalid"`
}

// Masked returns a log-safe representation of the token value.
func (t Token) Masked() string {
	return MaskToken(t.Value)
}

// MaskToken shows the first and last 4 characters only.
func MaskToken(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// Account is a configured generation account: a credential pool bound to one remote project.
// Account values come from a read-only Store and are never mutated by a run.
type Account struct {
	ID          string  `yaml:"id" json:"id"`
	DisplayName string  `yaml:"display_name" json:"display_name"`
	ProjectID   string  `yaml:"project_id" json:"project_id"`
	Tokens      []Token `yaml:"tokens" json:"tokens"`
	Enabled     bool    `yaml:"enabled" json:"enabled"`
}

// Name returns the display name, falling back to the id.
func (a *Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

// Validate 校验账号定义
func (a *Account) Validate() error {
	var errs []string
	if strings.TrimSpace(a.ID) == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(a.ProjectID) == "" {
		errs = append(errs, "project_id is required")
	}
	for i, t := range a.Tokens {
		if strings.TrimSpace(t.Value) == "" {
			errs = append(errs, fmt.Sprintf("tokens[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("account %q: %s", a.ID, strings.Join(errs, "; "))
	}
	return nil
}
