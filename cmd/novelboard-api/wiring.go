package main

import (
	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/config"
	"github.com/MarcoPoloResearchLab/novelboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/novelboard/internal/database"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type components struct {
	catalog    *catalog.Repository
	classifier classification.Classifier
	service    *dashboard.Service
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	return database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
}

func buildComponents(appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (*components, error) {
	repository, err := catalog.NewRepository(catalog.RepositoryConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}
	store, err := ratings.NewStore(ratings.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}
	classifier := classification.NewClassifier(ratings.NewRoster(appConfig.Reviewers, appConfig.PrimaryReviewers))

	cache, err := dashboard.NewAggregateCache(dashboard.AggregateCacheConfig{
		Catalog:    repository,
		Ratings:    store,
		Classifier: classifier,
		Scope: dashboard.Scope{
			RequiredKeywords:  appConfig.RequiredKeywords,
			MinFirstPublished: appConfig.MinFirstPublished,
		},
		TTL:    appConfig.CacheTTL,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	service, err := dashboard.NewService(dashboard.ServiceConfig{
		Snapshots:  cache,
		Catalog:    repository,
		Store:      store,
		Classifier: classifier,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return &components{
		catalog:    repository,
		classifier: classifier,
		service:    service,
	}, nil
}
