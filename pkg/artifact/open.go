package artifact

import (
	"context"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// OpenOptions carries backend settings that do not fit in a location
// string.
type OpenOptions struct {
	// Logger is passed to backends that log internally.
	Logger *log.Logger

	// Prefix namespaces keys in shared backends (redis).
	Prefix string
}

// Open returns the store named by location:
//
//	mem:                       in-memory store
//	file:/path or /path        directory of files
//	badger:/path               BadgerDB at path
//	badger:mem                 in-memory BadgerDB
//	redis://host:port/db       Redis
//	mongodb://host/db[?collection=name]
func Open(ctx context.Context, location string, opts OpenOptions) (Store, error) {
	switch {
	case location == "" || location == "mem:" || location == "memory:":
		return NewMemoryStore(), nil
	case strings.HasPrefix(location, "file:"):
		return NewFileStore(strings.TrimPrefix(location, "file:"))
	case strings.HasPrefix(location, "badger:"):
		path := strings.TrimPrefix(location, "badger:")
		cfg := BadgerConfig{Path: path, InMemory: path == "mem", SyncWrites: path != "mem", Logger: opts.Logger}
		return OpenBadger(cfg)
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return OpenRedis(ctx, location, opts.Prefix)
	case strings.HasPrefix(location, "mongodb://"), strings.HasPrefix(location, "mongodb+srv://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, emerrors.Wrap(emerrors.ErrCodeInvalidInput, err, "parse mongo url")
		}
		db := strings.TrimPrefix(u.Path, "/")
		collection := u.Query().Get("collection")
		q := u.Query()
		q.Del("collection")
		u.RawQuery = q.Encode()
		return OpenMongo(ctx, u.String(), db, collection)
	case strings.Contains(location, "://"):
		return nil, emerrors.New(emerrors.ErrCodeUnsupported, "unsupported store %q", location)
	default:
		return NewFileStore(location)
	}
}
