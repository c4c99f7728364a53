// Package geoip resolves source addresses against a local MaxMind City
// database. Lookups are cached; the pipeline runs fine without a database,
// in which case sessions keep whatever location the agent supplied.
package geoip

import (
	"fmt"
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oschwald/geoip2-golang"

	"github.com/snarelab/hivetrace/internal/model"
)

const cacheSize = 10000

// Resolver maps an IP address to a location. Implementations must be safe
// for concurrent use.
type Resolver interface {
	Resolve(ip string) (model.GeoLocation, bool)
	Close() error
}

// NopResolver resolves nothing. Used when no database path is configured.
type NopResolver struct{}

func (NopResolver) Resolve(string) (model.GeoLocation, bool) { return model.GeoLocation{}, false }
func (NopResolver) Close() error                             { return nil }

// MMDBResolver resolves against a GeoLite2/GeoIP2 City database file.
type MMDBResolver struct {
	reader *geoip2.Reader
	cache  *lru.Cache[string, model.GeoLocation]
}

// Open loads the database at path. The LRU cache bounds repeated lookups for
// noisy sources.
func Open(path string) (*MMDBResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	cache, err := lru.New[string, model.GeoLocation](cacheSize)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("geoip: cache: %w", err)
	}
	return &MMDBResolver{reader: reader, cache: cache}, nil
}

// Resolve returns the location for ip. The second return is false for
// unparseable addresses, lookup errors and records with no country.
func (r *MMDBResolver) Resolve(ip string) (model.GeoLocation, bool) {
	if loc, ok := r.cache.Get(ip); ok {
		return loc, loc.Country != "" || loc.CountryCode != ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return model.GeoLocation{}, false
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return model.GeoLocation{}, false
	}

	loc := model.GeoLocation{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	if record.Postal.Code != "" {
		loc.ZipCode = record.Postal.Code
	}

	r.cache.Add(ip, loc)
	return loc, loc.Country != "" || loc.CountryCode != ""
}

func (r *MMDBResolver) Close() error {
	return r.reader.Close()
}
