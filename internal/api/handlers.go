package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/Tomifemme/dashboard/internal/engine"
	"github.com/Tomifemme/dashboard/internal/models"
)

// Handler serves the dashboard API from a swappable ColumnStore. The
// store is nil until the background ETL lands; until then every data
// endpoint answers 503 so the UI shows "loading" instead of empty data.
type Handler struct {
	mu      sync.RWMutex
	store   *engine.ColumnStore
	loadErr error
	topN    int
}

func NewHandler(topN int) *Handler {
	if topN <= 0 {
		topN = 10
	}
	return &Handler{topN: topN}
}

// SetStore swaps in a freshly loaded store and clears any load error.
func (h *Handler) SetStore(cs *engine.ColumnStore) {
	h.mu.Lock()
	h.store = cs
	h.loadErr = nil
	h.mu.Unlock()
}

// SetLoadError records a failed load so the failure is visible to
// clients instead of looking like an empty dataset.
func (h *Handler) SetLoadError(err error) {
	h.mu.Lock()
	h.loadErr = err
	h.mu.Unlock()
}

func (h *Handler) snapshot() (*engine.ColumnStore, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.store != nil {
		return h.store, nil
	}
	if h.loadErr != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable,
			fmt.Sprintf("data load failed: %v", h.loadErr))
	}
	return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "data loading")
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.GetHealth)
	api := e.Group("/api")
	api.GET("/summary", h.GetSummary)
	api.GET("/countries", h.GetCountries)
	api.GET("/series/global", h.GetGlobalSeries)
	api.GET("/series/country", h.GetCountrySeries)
	api.GET("/compare", h.GetCompare)
	api.GET("/top", h.GetTop)
}

// --- PARAM HELPERS ---

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// getRangeParams parses the optional from/to date filters. Zero means
// "use the dataset's bound".
func getRangeParams(c echo.Context) (int32, int32, error) {
	var from, to int32
	if s := c.QueryParam("from"); s != "" {
		d, err := engine.ParseDay(s)
		if err != nil {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
		}
		from = d
	}
	if s := c.QueryParam("to"); s != "" {
		d, err := engine.ParseDay(s)
		if err != nil {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
		}
		to = d
	}
	return from, to, nil
}

func getMetricParam(c echo.Context) (string, error) {
	metric := c.QueryParam("metric")
	switch metric {
	case "":
		return "new_cases", nil
	case "new_cases", "new_deaths":
		return metric, nil
	}
	return "", echo.NewHTTPError(http.StatusBadRequest, "unknown metric, want new_cases or new_deaths")
}

func (h *Handler) countryStats(cs *engine.ColumnStore, selector, metric string, from, to int32) (models.CountryStats, int32, error) {
	id, ok := cs.FindCountry(selector)
	if !ok {
		return models.CountryStats{}, 0, echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("unknown country %q", selector))
	}
	series := cs.CountrySeries(id, metric, from, to)
	return models.CountryStats{
		Code:    cs.CodeDict[id],
		Name:    cs.CountryDict[id],
		Series:  series,
		Metrics: engine.SeriesMetrics(series, metric),
	}, id, nil
}

// --- HANDLERS ---

func (h *Handler) GetHealth(c echo.Context) error {
	h.mu.RLock()
	ready := h.store != nil
	h.mu.RUnlock()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ready":  ready,
	})
}

func (h *Handler) GetSummary(c echo.Context) error {
	cs, err := h.snapshot()
	if err != nil {
		return err
	}
	from, to, err := getRangeParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cs.Summary(from, to))
}

func (h *Handler) GetCountries(c echo.Context) error {
	cs, err := h.snapshot()
	if err != nil {
		return err
	}

	regions := cs.CountryRegions()
	list := make([]models.CountryInfo, 0, len(cs.CountryDict))
	for id, name := range cs.CountryDict {
		list = append(list, models.CountryInfo{
			Code:   cs.CodeDict[id],
			Name:   name,
			Region: regions[id],
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	total := len(list)
	limit, offset := getPaginationParams(c, total)

	if offset >= total {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"data": []models.CountryInfo{}, "total": total, "limit": limit, "offset": offset,
		})
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   list[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetGlobalSeries(c echo.Context) error {
	cs, err := h.snapshot()
	if err != nil {
		return err
	}
	from, to, err := getRangeParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cs.GlobalSeries(from, to))
}

func (h *Handler) GetCountrySeries(c echo.Context) error {
	cs, err := h.snapshot()
	if err != nil {
		return err
	}
	from, to, err := getRangeParams(c)
	if err != nil {
		return err
	}
	metric, err := getMetricParam(c)
	if err != nil {
		return err
	}
	selector := c.QueryParam("country")
	if selector == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "country parameter is required")
	}
	stats, _, err := h.countryStats(cs, selector, metric, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetCompare(c echo.Context) error {
	cs, err := h.snapshot()
	if err != nil {
		return err
	}
	from, to, err := getRangeParams(c)
	if err != nil {
		return err
	}
	metric, err := getMetricParam(c)
	if err != nil {
		return err
	}
	primary := c.QueryParam("primary")
	comparison := c.QueryParam("comparison")
	if primary == "" || comparison == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "primary and comparison parameters are required")
	}

	p, pid, err := h.countryStats(cs, primary, metric, from, to)
	if err != nil {
		return err
	}
	q, qid, err := h.countryStats(cs, comparison, metric, from, to)
	if err != nil {
		return err
	}

	totals := cs.CountryTotals(metric, from, to)
	var world int64
	for _, v := range totals {
		world += v
	}
	combined := totals[pid]
	if qid != pid {
		combined += totals[qid]
	}

	return c.JSON(http.StatusOK, models.CompareResponse{
		Metric:      metric,
		Primary:     p,
		Comparison:  q,
		Combined:    combined,
		RestOfWorld: world - combined,
	})
}

func (h *Handler) GetTop(c echo.Context) error {
	cs, err := h.snapshot()
	if err != nil {
		return err
	}
	from, to, err := getRangeParams(c)
	if err != nil {
		return err
	}
	metric, err := getMetricParam(c)
	if err != nil {
		return err
	}
	limit, _ := getPaginationParams(c, h.topN)

	// Selected countries ride along even outside the top N.
	var include []int32
	if s := c.QueryParam("include"); s != "" {
		for _, sel := range strings.Split(s, ",") {
			if id, ok := cs.FindCountry(strings.TrimSpace(sel)); ok {
				include = append(include, id)
			}
		}
	}
	return c.JSON(http.StatusOK, cs.TopCountries(metric, from, to, limit, include))
}
