package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/crowdzone/internal/geofence"
)

// ZonesFile is the YAML layout of a zone seed file:
//
//	zones:
//	  - name: Main stage
//	    lat: 45.07
//	    lon: 7.68
//	    radius: 120
//	    threshold: 50
type ZonesFile struct {
	Zones []geofence.ZoneAttrs `yaml:"zones"`
}

// LoadZonesFile reads a zone seed file.
func LoadZonesFile(path string) ([]geofence.ZoneAttrs, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	return ParseZones(data)
}

// ParseZones decodes zone seed YAML. Every entry needs a name, lat, lon and
// radius; a missing threshold means zero.
func ParseZones(data []byte) ([]geofence.ZoneAttrs, error) {
	var file ZonesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse zones file: %w", err)
	}
	for i, z := range file.Zones {
		if z.Name == nil || z.Lat == nil || z.Lon == nil || z.Radius == nil {
			return nil, fmt.Errorf("zone %d: name, lat, lon and radius are required", i)
		}
	}
	return file.Zones, nil
}
