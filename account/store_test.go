package account

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func TestFileStore_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	content := `
accounts:
  - id: main
    display_name: Main
    project_id: proj-main
    tokens: ["tok-a", "tok-b"]
  - id: spare
    project_id: proj-spare
    enabled: false
    tokens: ["tok-c"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	accounts, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "main", accounts[0].ID)
	assert.True(t, accounts[0].Enabled, "enabled defaults to true")
	assert.Equal(t, []Token{{Value: "tok-a"}, {Value: "tok-b"}}, accounts[0].Tokens)
	assert.False(t, accounts[1].Enabled)
	assert.Equal(t, "spare", accounts[1].Name())
}

func TestFileStore_Errors(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  - id: x\n"), 0o600))
	_, err = NewFileStore(path).Load(context.Background())
	assert.ErrorContains(t, err, "project_id is required")
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := OpenDB(SQLConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "accounts.db"),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestSQLStore_Load(t *testing.T) {
	db := setupTestDB(t)

	records := []*AccountRecord{
		{Code: "second", ProjectID: "proj-2", Priority: 2, Enabled: true},
		{Code: "first", DisplayName: "主账号", ProjectID: "proj-1", Priority: 1, Enabled: true},
	}
	for _, rec := range records {
		require.NoError(t, db.Create(rec).Error)
	}
	tokens := []*TokenRecord{
		{AccountID: records[1].ID, Value: "tok-late", Position: 2},
		{AccountID: records[1].ID, Value: "tok-early", Position: 1},
		{AccountID: records[1].ID, Value: "tok-revoked", Position: 0, Revoked: true},
		{AccountID: records[0].ID, Value: "tok-x", Position: 0},
	}
	for _, tok := range tokens {
		require.NoError(t, db.Create(tok).Error)
	}

	accounts, err := NewSQLStore(db, zaptest.NewLogger(t)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "first", accounts[0].ID)
	assert.Equal(t, "主账号", accounts[0].DisplayName)
	assert.Equal(t, []Token{{Value: "tok-early"}, {Value: "tok-late"}}, accounts[0].Tokens)
	assert.Equal(t, "second", accounts[1].ID)

	// 存储只读：运行期隔离不会影响数据库
	pool, err := NewPool(accounts, nil)
	require.NoError(t, err)
	pool.MarkInvalid("first", Token{Value: "tok-early"})

	var count int64
	require.NoError(t, db.Model(&TokenRecord{}).Where("revoked = ?", true).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOpenDB_UnsupportedDriver(t *testing.T) {
	_, err := OpenDB(SQLConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestStaticStore(t *testing.T) {
	store := StaticStore{newTestAccount("a", "t")}
	accounts, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
