package models

// CountryInfo identifies one reporting country.
type CountryInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"who_region"`
}

// Summary is the global snapshot for a date range.
type Summary struct {
	Countries   int    `json:"countries"`
	Rows        int    `json:"rows"`
	FirstDate   string `json:"first_date"`
	LastDate    string `json:"last_date"`
	NewCases    int64  `json:"new_cases"`
	NewDeaths   int64  `json:"new_deaths"`
	TotalCases  int64  `json:"cumulative_cases"`
	TotalDeaths int64  `json:"cumulative_deaths"`
}

// GlobalPoint is one day of worldwide sums.
type GlobalPoint struct {
	Date      string `json:"date"`
	NewCases  int64  `json:"new_cases"`
	NewDeaths int64  `json:"new_deaths"`
}

// SeriesPoint is one day of a single country's series. GrowthRate is the
// percent change of the requested metric against the previous reported day,
// CFR is cumulative deaths over cumulative cases.
type SeriesPoint struct {
	Date       string  `json:"date"`
	NewCases   int64   `json:"new_cases"`
	NewDeaths  int64   `json:"new_deaths"`
	CumCases   int64   `json:"cumulative_cases"`
	CumDeaths  int64   `json:"cumulative_deaths"`
	GrowthRate float64 `json:"growth_rate"`
	CFR        float64 `json:"cfr"`
}

// KeyMetrics summarizes one country's series for the insight cards.
type KeyMetrics struct {
	Peak float64 `json:"peak"`
	Mean float64 `json:"mean"`
}

// CountryStats bundles a country's series with its key metrics.
type CountryStats struct {
	Code    string        `json:"code"`
	Name    string        `json:"name"`
	Series  []SeriesPoint `json:"series"`
	Metrics KeyMetrics    `json:"metrics"`
}

// RankEntry is one row of the top-countries ranking.
type RankEntry struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Total    int64  `json:"total"`
	Selected bool   `json:"selected,omitempty"`
}

// CompareResponse is the two-country comparison payload: both series,
// plus the combined total set against the rest of the world.
type CompareResponse struct {
	Metric      string       `json:"metric"`
	Primary     CountryStats `json:"primary"`
	Comparison  CountryStats `json:"comparison"`
	Combined    int64        `json:"combined_total"`
	RestOfWorld int64        `json:"rest_of_world_total"`
}
