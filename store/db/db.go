package db

import (
	"github.com/pkg/errors"

	"github.com/glimpse-dev/glimpse/internal/profile"
	"github.com/glimpse-dev/glimpse/store"
	"github.com/glimpse-dev/glimpse/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
// The relational store holds item rows and runs on SQLite; the vector index
// is a separate concern (see plugin/vector).
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' is supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
