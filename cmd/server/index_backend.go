package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/config"
	"simbridge.ai/internal/persistence/indexdb"
)

// openIndex returns the configured command/execution index, or nil when
// indexing is disabled.
func openIndex(cfg config.IndexConfig, log logrus.FieldLogger) (indexdb.Index, error) {
	switch cfg.Backend {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
		idx, err := indexdb.OpenSQLite(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "remote":
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      cfg.Endpoint,
			Token:         cfg.Token,
			BatchSize:     cfg.BatchSize,
			FlushInterval: time.Duration(cfg.FlushMS) * time.Millisecond,
		}, log)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}
