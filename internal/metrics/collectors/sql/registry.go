package sql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectorFactory builds a collector reading from the export database.
type CollectorFactory func(db *sql.DB) (prometheus.Collector, error)

// Registry holds the collector factories of the export database.
type Registry struct {
	factories []CollectorFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make([]CollectorFactory, 0),
	}
}

func (r *Registry) Register(factory CollectorFactory) {
	r.factories = append(r.factories, factory)
}

// CreateCollectors instantiates every registered collector against db.
func (r *Registry) CreateCollectors(db *sql.DB) ([]prometheus.Collector, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}

	collectors := make([]prometheus.Collector, 0, len(r.factories))
	for i, factory := range r.factories {
		collector, err := factory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create collector %d: %w", i, err)
		}
		collectors = append(collectors, collector)
	}
	return collectors, nil
}

var DefaultRegistry = NewRegistry()

func RegisterCollectorFactory(factory CollectorFactory) {
	DefaultRegistry.Register(factory)
}
