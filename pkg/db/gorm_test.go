package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"mini-rpa/pkg/config"
)

type probe struct {
	ID   uint
	Name string
}

func TestDialector(t *testing.T) {
	d, err := Dialector(config.DBConfig{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = Dialector(config.DBConfig{Type: "mysql", DSN: "root:@tcp(127.0.0.1:3306)/minirpa?parseTime=True"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	_, err = Dialector(config.DBConfig{Type: "mysql"})
	assert.ErrorContains(t, err, "no DSN")

	_, err = Dialector(config.DBConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "unsupported db.type")
}

func TestNewGormDB_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "journal.db")
	gormDB, err := NewGormDB(config.DBConfig{Type: "sqlite", DSN: dsn}, logger.Silent)
	require.NoError(t, err)
	defer func() { assert.NoError(t, Close(gormDB)) }()

	require.NoError(t, AutoMigrate(gormDB, &probe{}))
	require.NoError(t, gormDB.Create(&probe{Name: "x"}).Error)

	var got probe
	require.NoError(t, gormDB.First(&got).Error)
	assert.Equal(t, "x", got.Name)
}
