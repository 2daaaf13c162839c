package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestNewSQLite(t *testing.T) {
	uri := "sqlite://" + filepath.Join(t.TempDir(), "test.db")

	db, err := New(Options{URI: uri, Logger: zap.NewNop()})
	require.NoError(t, err)

	type record struct {
		ID string `gorm:"primaryKey"`
	}
	require.NoError(t, db.AutoMigrate(&record{}))
	require.NoError(t, db.Create(&record{ID: "a"}).Error)

	var p record
	err = db.First(&p, "id = ?", "missing").Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNewInvalidOptions(t *testing.T) {
	_, err := New(Options{URI: "sqlite://x.db"})
	assert.Error(t, err)

	_, err = New(Options{Logger: zap.NewNop()})
	assert.Error(t, err)
}
