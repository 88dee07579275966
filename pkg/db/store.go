package db

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrVersionConflict  = errors.New("document version conflict")
)

// Open opens the sqlite database at path, creating parent directories, and
// migrates the schema.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, pkgerrors.Wrap(err, "create database directory")
		}
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open database %s", path)
	}
	if err := gdb.AutoMigrate(&Document{}, &StreamRun{}); err != nil {
		return nil, pkgerrors.Wrap(err, "migrate database")
	}
	return gdb, nil
}

// DocumentStore reads and writes documents.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// AutoMigrate creates database tables
func (s *DocumentStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Document{})
}

func (s *DocumentStore) Create(d *Document) error {
	if err := s.db.Create(d).Error; err != nil {
		return pkgerrors.Wrap(err, "create document")
	}
	return nil
}

func (s *DocumentStore) Get(id string) (*Document, error) {
	var d Document
	if err := s.db.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, pkgerrors.Wrapf(err, "get document %s", id)
	}
	return &d, nil
}

// List returns all documents, most recently updated first.
func (s *DocumentStore) List() ([]DocumentSummary, error) {
	var out []DocumentSummary
	err := s.db.Model(&Document{}).
		Select("id", "title", "version", "updated_at").
		Order("updated_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list documents")
	}
	return out, nil
}

// SaveContent stores new content for a document. The write only succeeds
// when the stored version is older than version, so late saves never
// overwrite newer content.
func (s *DocumentStore) SaveContent(id, content string, version int64) error {
	res := s.db.Model(&Document{}).
		Where("id = ? AND version < ?", id, version).
		Updates(map[string]any{"content": content, "version": version})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "save document %s", id)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	return nil
}

func (s *DocumentStore) Rename(id, title string) error {
	res := s.db.Model(&Document{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "rename document %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *DocumentStore) Delete(id string) error {
	res := s.db.Delete(&Document{}, "id = ?", id)
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "delete document %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
