package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomifemme/dashboard/internal/engine"
	"github.com/Tomifemme/dashboard/internal/models"
)

const fixtureCSV = `Date_reported,Country_code,Country,WHO_region,New_cases,Cumulative_cases,New_deaths,Cumulative_deaths
2020-03-01,DE,Germany,EURO,10,10,1,1
2020-03-02,DE,Germany,EURO,20,30,2,3
2020-03-01,IT,Italy,EURO,5,5,0,0
2020-03-02,IT,Italy,EURO,8,13,1,1
2020-03-01,FR,France,EURO,2,2,0,0
`

func newTestServer(t *testing.T) (*echo.Echo, *Handler) {
	t.Helper()
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	h := NewHandler(10)
	h.RegisterRoutes(e)
	return e, h
}

func do(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func loadFixture(t *testing.T, h *Handler) {
	t.Helper()
	store, err := engine.LoadBytes([]byte(fixtureCSV))
	require.NoError(t, err)
	h.SetStore(store)
}

func TestDataEndpointsBeforeLoad(t *testing.T) {
	e, h := newTestServer(t)

	t.Run("503 while loading", func(t *testing.T) {
		rec := do(e, "/api/summary")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "data loading")
	})

	t.Run("health stays 200 but not ready", func(t *testing.T) {
		rec := do(e, "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["ready"])
	})

	t.Run("load failure is visible, not an empty dataset", func(t *testing.T) {
		h.SetLoadError(errors.New("read dataset: no such file"))
		rec := do(e, "/api/summary")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "no such file")
	})
}

func TestGetSummary(t *testing.T) {
	e, h := newTestServer(t)
	loadFixture(t, h)

	rec := do(e, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum models.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Countries)
	assert.Equal(t, 5, sum.Rows)
	assert.Equal(t, int64(45), sum.NewCases)
	// Last-day cumulatives: 30 + 13 + 2
	assert.Equal(t, int64(45), sum.TotalCases)
	assert.Equal(t, "2020-03-01", sum.FirstDate)
	assert.Equal(t, "2020-03-02", sum.LastDate)
}

func TestGetCountries(t *testing.T) {
	e, h := newTestServer(t)
	loadFixture(t, h)

	rec := do(e, "/api/countries?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []models.CountryInfo `json:"data"`
		Total int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Data, 1)
	// Sorted by name: France, Germany, Italy
	assert.Equal(t, "Germany", body.Data[0].Name)
	assert.Equal(t, "DE", body.Data[0].Code)
	assert.Equal(t, "EURO", body.Data[0].Region)
}

func TestGetCountrySeries(t *testing.T) {
	e, h := newTestServer(t)
	loadFixture(t, h)

	t.Run("by code", func(t *testing.T) {
		rec := do(e, "/api/series/country?country=DE&metric=new_cases")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats models.CountryStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, "Germany", stats.Name)
		require.Len(t, stats.Series, 2)
		assert.Equal(t, int64(20), stats.Series[1].NewCases)
		assert.Equal(t, 1.0, stats.Series[1].GrowthRate)
		assert.Equal(t, float64(20), stats.Metrics.Peak)
		assert.Equal(t, float64(15), stats.Metrics.Mean)
	})

	t.Run("unknown country", func(t *testing.T) {
		rec := do(e, "/api/series/country?country=Atlantis")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing country param", func(t *testing.T) {
		rec := do(e, "/api/series/country")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad metric", func(t *testing.T) {
		rec := do(e, "/api/series/country?country=DE&metric=vibes")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := do(e, "/api/series/country?country=DE&from=03-01-2020")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetCompare(t *testing.T) {
	e, h := newTestServer(t)
	loadFixture(t, h)

	rec := do(e, "/api/compare?primary=DE&comparison=IT&metric=new_cases")
	require.Equal(t, http.StatusOK, rec.Code)

	var cmp models.CompareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	assert.Equal(t, "Germany", cmp.Primary.Name)
	assert.Equal(t, "Italy", cmp.Comparison.Name)
	// DE 30 + IT 13 combined, France 2 remains
	assert.Equal(t, int64(43), cmp.Combined)
	assert.Equal(t, int64(2), cmp.RestOfWorld)

	rec = do(e, "/api/compare?primary=DE")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTop(t *testing.T) {
	e, h := newTestServer(t)
	loadFixture(t, h)

	rec := do(e, "/api/top?metric=new_cases&limit=2&include=FR")
	require.Equal(t, http.StatusOK, rec.Code)

	var top []models.RankEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 3)
	assert.Equal(t, "DE", top[0].Code)
	assert.Equal(t, int64(30), top[0].Total)
	assert.Equal(t, "IT", top[1].Code)
	// France misses the top 2 but is selected
	assert.Equal(t, "FR", top[2].Code)
	assert.True(t, top[2].Selected)
}

func TestGetGlobalSeriesRange(t *testing.T) {
	e, h := newTestServer(t)
	loadFixture(t, h)

	rec := do(e, "/api/series/global?from=2020-03-02&to=2020-03-02")
	require.Equal(t, http.StatusOK, rec.Code)

	var series []models.GlobalPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series, 1)
	assert.Equal(t, "2020-03-02", series[0].Date)
	assert.Equal(t, int64(28), series[0].NewCases)
	assert.Equal(t, int64(3), series[0].NewDeaths)
}
