package engine

import "strings"

// ColumnStore holds WHO rows in Struct-of-Arrays format for speed
type ColumnStore struct {
	// Data Columns (Flat Arrays)
	Days      []int32 // days since Unix epoch
	NewCases  []int64
	CumCases  []int64
	NewDeaths []int64
	CumDeaths []int64

	// Dictionary Encoded IDs (0..N)
	CountryIDs []int32
	RegionIDs  []int32

	// Dictionaries (ID -> String). CodeDict is aligned with CountryDict:
	// the same ID indexes both the ISO2 code and the country name.
	CountryDict []string
	CodeDict    []string
	RegionDict  []string

	// Day bounds observed at load time
	MinDay int32
	MaxDay int32
}

// Rows returns the number of data rows in the store.
func (cs *ColumnStore) Rows() int { return len(cs.Days) }

// FindCountry resolves a user-supplied selector to a country ID. ISO2
// codes match case-insensitively, names match exactly first, then
// case-insensitively.
func (cs *ColumnStore) FindCountry(q string) (int32, bool) {
	for id, code := range cs.CodeDict {
		if strings.EqualFold(code, q) {
			return int32(id), true
		}
	}
	for id, name := range cs.CountryDict {
		if name == q {
			return int32(id), true
		}
	}
	for id, name := range cs.CountryDict {
		if strings.EqualFold(name, q) {
			return int32(id), true
		}
	}
	return 0, false
}

// CountryRegions maps each country ID to its WHO region name. Regions
// are stored per row, so this takes the first row seen per country.
func (cs *ColumnStore) CountryRegions() []string {
	regions := make([]string, len(cs.CountryDict))
	seen := make([]bool, len(cs.CountryDict))
	filled := 0
	for j := range cs.CountryIDs {
		cid := cs.CountryIDs[j]
		if !seen[cid] {
			seen[cid] = true
			regions[cid] = cs.RegionDict[cs.RegionIDs[j]]
			filled++
			if filled == len(regions) {
				break
			}
		}
	}
	return regions
}

// MetricColumn maps a metric name to its column. The two metrics mirror
// the dashboard's sidebar toggle.
func (cs *ColumnStore) MetricColumn(metric string) ([]int64, bool) {
	switch metric {
	case "new_cases":
		return cs.NewCases, true
	case "new_deaths":
		return cs.NewDeaths, true
	}
	return nil, false
}
