package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"

	"github.com/go-redis/redis/v8"
)

// Redis键名
const (
	keyCatalogData    = "catalog:data"
	keyCatalogVersion = "catalog:version"
)

// InterfaceCatalogCache 目录快照缓存。缓存是尽力而为的：刷新失败时必须
// 作废旧条目，读路径回落到数据库，不允许继续供应过期的版本号。
type InterfaceCatalogCache interface {
	CacheCatalog(doc *models.CatalogDocument, version int64) error
	GetCachedCatalog() (*models.CatalogDocument, error)
	GetCachedVersion() (int64, error)
	InvalidateCatalog() error
}

// RedisService handles Redis operations
type RedisService struct {
	Client *redis.Client
	Ctx    context.Context
}

// NewRedisService creates a new Redis service
func NewRedisService(cfg *config.Config) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: "", // No password set
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	return &RedisService{
		Client: client,
		Ctx:    ctx,
	}
}

// Set sets a key-value pair in Redis with expiration
func (s *RedisService) Set(key string, value interface{}, expiration time.Duration) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.Client.Set(s.Ctx, key, jsonValue, expiration).Err()
}

// Get gets a value from Redis by key
func (s *RedisService) Get(key string, dest interface{}) error {
	val, err := s.Client.Get(s.Ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(val), dest)
}

// Delete deletes a key from Redis
func (s *RedisService) Delete(key string) error {
	return s.Client.Del(s.Ctx, key).Err()
}

// CacheCatalog 缓存序列化后的目录快照和版本号。
// 每次成功写库后刷新，读路径可以不访问MySQL。
func (s *RedisService) CacheCatalog(doc *models.CatalogDocument, version int64) error {
	if err := s.Set(keyCatalogData, doc, 0); err != nil {
		return err
	}
	return s.Client.Set(s.Ctx, keyCatalogVersion, version, 0).Err()
}

// InvalidateCatalog 删除缓存中的目录快照和版本号
func (s *RedisService) InvalidateCatalog() error {
	return s.Client.Del(s.Ctx, keyCatalogData, keyCatalogVersion).Err()
}

// GetCachedCatalog 读取缓存中的目录快照
func (s *RedisService) GetCachedCatalog() (*models.CatalogDocument, error) {
	doc := models.EmptyCatalog()
	if err := s.Get(keyCatalogData, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetCachedVersion 读取缓存中的目录版本号
func (s *RedisService) GetCachedVersion() (int64, error) {
	val, err := s.Client.Get(s.Ctx, keyCatalogVersion).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
