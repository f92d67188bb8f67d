package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/katakuxiko/assistgw/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// assistantRecord - строка таблицы assistants
type assistantRecord struct {
	ID              string   `gorm:"primaryKey"`
	Name            string
	OrganizationID  string   `gorm:"index"`
	SystemPrompt    string
	PromptTemplate  string
	RAGCollections  []string `gorm:"serializer:json"`
	RAGTopK         int
	ConnectorName   string
	ModelName       string
	PromptProcessor string
	RAGProcessor    string
	UpdatedAt       time.Time
}

func (assistantRecord) TableName() string { return "assistants" }

// providerRecord - настройки провайдера одной организации
type providerRecord struct {
	OrganizationID string   `gorm:"primaryKey"`
	Provider       string   `gorm:"primaryKey"`
	Enabled        bool
	APIKey         string
	BaseURL        string
	AllowedModels  []string `gorm:"serializer:json"`
	DefaultModel   string
	UpdatedAt      time.Time
}

func (providerRecord) TableName() string { return "provider_configs" }

// ConfigDB - хранилище ассистентов и настроек организаций (только чтение для запросов)
type ConfigDB struct {
	db *gorm.DB
}

// OpenConfigDB открывает SQLite-базу и создаёт таблицы
func OpenConfigDB(path string) (*ConfigDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open config db: %w", err)
	}
	if err := db.AutoMigrate(&assistantRecord{}, &providerRecord{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &ConfigDB{db: db}, nil
}

func (c *ConfigDB) GetAssistant(ctx context.Context, id string) (*model.Assistant, error) {
	var r assistantRecord
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrAssistantNotFound
		}
		return nil, err
	}
	a := r.toModel()
	return &a, nil
}

func (c *ConfigDB) ListAssistants(ctx context.Context) ([]model.Assistant, error) {
	var rs []assistantRecord
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&rs).Error; err != nil {
		return nil, err
	}
	out := make([]model.Assistant, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetProviderConfig returns nil, nil when the organization has no record.
func (c *ConfigDB) GetProviderConfig(ctx context.Context, orgID, provider string) (*model.ProviderConfig, error) {
	var r providerRecord
	err := c.db.WithContext(ctx).Where("organization_id = ? AND provider = ?", orgID, provider).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.ProviderConfig{
		Provider:      r.Provider,
		Enabled:       r.Enabled,
		APIKey:        r.APIKey,
		BaseURL:       r.BaseURL,
		AllowedModels: r.AllowedModels,
		DefaultModel:  r.DefaultModel,
	}, nil
}

// Import заменяет всё содержимое базы данными seed в одной транзакции
func (c *ConfigDB) Import(ctx context.Context, seed *Seed) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM assistants`).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM provider_configs`).Error; err != nil {
			return err
		}
		for _, a := range seed.Assistants {
			r := assistantFromModel(a)
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("assistant %q: %w", a.ID, err)
			}
		}
		for _, p := range seed.Providers {
			r := providerRecord{
				OrganizationID: p.OrganizationID,
				Provider:       p.Provider,
				Enabled:        p.Enabled,
				APIKey:         p.APIKey,
				BaseURL:        p.BaseURL,
				AllowedModels:  p.AllowedModels,
				DefaultModel:   p.DefaultModel,
			}
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("provider %s/%s: %w", p.OrganizationID, p.Provider, err)
			}
		}
		return nil
	})
}

func (c *ConfigDB) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r assistantRecord) toModel() model.Assistant {
	return model.Assistant{
		ID:             r.ID,
		Name:           r.Name,
		OrganizationID: r.OrganizationID,
		SystemPrompt:   r.SystemPrompt,
		PromptTemplate: r.PromptTemplate,
		RAGCollections: r.RAGCollections,
		RAGTopK:        r.RAGTopK,
		Pipeline: model.PipelineConfig{
			ConnectorName:       r.ConnectorName,
			ModelName:           r.ModelName,
			PromptProcessorName: r.PromptProcessor,
			RAGProcessorName:    r.RAGProcessor,
		},
	}
}

func assistantFromModel(a model.Assistant) assistantRecord {
	return assistantRecord{
		ID:              a.ID,
		Name:            a.Name,
		OrganizationID:  a.OrganizationID,
		SystemPrompt:    a.SystemPrompt,
		PromptTemplate:  a.PromptTemplate,
		RAGCollections:  a.RAGCollections,
		RAGTopK:         a.RAGTopK,
		ConnectorName:   a.Pipeline.ConnectorName,
		ModelName:       a.Pipeline.ModelName,
		PromptProcessor: a.Pipeline.PromptProcessorName,
		RAGProcessor:    a.Pipeline.RAGProcessorName,
	}
}
