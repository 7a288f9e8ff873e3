package tracking

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindLocator resolves IPs against a local GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	reader *geoip2.Reader
}

// NewMaxMindLocator opens the database file at path.
func NewMaxMindLocator(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Locate returns the city-level location for ip, or UnknownLocation for
// loopback, private, unparseable, and unlisted addresses.
func (l *MaxMindLocator) Locate(ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsUnspecified() || parsed.IsPrivate() {
		return UnknownLocation()
	}

	record, err := l.reader.City(parsed)
	if err != nil || record == nil {
		return UnknownLocation()
	}

	loc := UnknownLocation()
	if record.Country.IsoCode != "" {
		loc.Country = record.Country.IsoCode
	}
	if name := record.City.Names["en"]; name != "" {
		loc.City = name
	}
	if len(record.Subdivisions) > 0 && record.Subdivisions[0].IsoCode != "" {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	if record.Location.TimeZone != "" {
		loc.Timezone = record.Location.TimeZone
	}
	return loc
}

// Close releases the underlying database handle.
func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}

// NopLocator is used when no geo database is configured.
type NopLocator struct{}

func (NopLocator) Locate(string) Location { return UnknownLocation() }
