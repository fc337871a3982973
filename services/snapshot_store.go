package services

import (
	"encoding/json"
	"errors"

	"github.com/LucaRoldo98/ApPills/models"

	"gorm.io/gorm"
)

// SnapshotStore 目录快照的持久化层。整个目录作为一条JSON记录读写，
// 版本号随记录一起保存。
type SnapshotStore interface {
	Load() (*models.CatalogDocument, int64, error)
	Save(doc *models.CatalogDocument, version int64) error
}

// GormSnapshotStore 基于MySQL单行快照的实现
type GormSnapshotStore struct {
	DB *gorm.DB
}

// NewGormSnapshotStore 创建数据库快照存储
func NewGormSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{DB: db}
}

// Load 读取完整目录。快照还不存在时返回空目录和版本0。
func (s *GormSnapshotStore) Load() (*models.CatalogDocument, int64, error) {
	var snapshot models.CatalogSnapshot
	if err := s.DB.First(&snapshot, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EmptyCatalog(), 0, nil
		}
		return nil, 0, err
	}

	doc := models.EmptyCatalog()
	if err := json.Unmarshal(snapshot.Data, doc); err != nil {
		return nil, 0, err
	}
	return doc, snapshot.Version, nil
}

// Save 覆盖写入完整目录和新版本号
func (s *GormSnapshotStore) Save(doc *models.CatalogDocument, version int64) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	snapshot := models.CatalogSnapshot{ID: 1, Version: version, Data: data}
	return s.DB.Save(&snapshot).Error
}
