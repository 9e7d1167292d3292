package app

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/accstore/accstore/internal/domain"
)

//go:embed config_schemas.json
var configSchemasData []byte

// ConfigSchema describes one settings entry and its default
type ConfigSchema struct {
	Key         string `json:"key"` // "category.name"
	Default     string `json:"default"`
	Description string `json:"description"`
}

type ConfigSchemasJSON struct {
	Schemas []ConfigSchema `json:"schemas"`
}

const configCacheTTL = 30 * time.Second

type cachedValue struct {
	value    string
	cachedAt time.Time
}

// ConfigManager reads runtime settings from the sys_config table with a
// short-lived cache in front.
type ConfigManager struct {
	app   DBProvider
	cache sync.Map // "category.name" -> cachedValue
}

func NewConfigManager(app DBProvider) *ConfigManager {
	return &ConfigManager{app: app}
}

func (m *ConfigManager) GetString(category, name string) string {
	key := fmt.Sprintf("%s.%s", category, name)
	if v, ok := m.cache.Load(key); ok {
		cv := v.(cachedValue)
		if time.Since(cv.cachedAt) < configCacheTTL {
			return cv.value
		}
	}

	var cfg domain.SysConfig
	err := m.app.DB().Where("type = ? and name = ?", category, name).First(&cfg).Error
	if err != nil {
		return ""
	}
	m.cache.Store(key, cachedValue{value: cfg.Value, cachedAt: time.Now()})
	return cfg.Value
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.GetString(category, name))
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.GetString(category, name))
}

// Set writes a settings value and invalidates its cache entry.
func (m *ConfigManager) Set(category, name, value string) error {
	key := fmt.Sprintf("%s.%s", category, name)
	defer m.cache.Delete(key)

	var count int64
	m.app.DB().Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).Count(&count)
	if count == 0 {
		return m.app.DB().Create(&domain.SysConfig{
			Type:  category,
			Name:  name,
			Value: value,
		}).Error
	}
	err := m.app.DB().Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).
		Updates(map[string]interface{}{"value": value, "updated_at": time.Now()}).Error
	if err != nil {
		zap.L().Error("failed to update setting",
			zap.String("key", key), zap.Error(err))
	}
	return err
}
