package engine

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Tomifemme/dashboard/internal/models"
)

// DayString formats an epoch day back to the dataset's ISO date form.
func DayString(day int32) string {
	return time.Unix(int64(day)*86400, 0).UTC().Format("2006-01-02")
}

// ParseDay parses "2006-01-02" into days since the Unix epoch.
func ParseDay(s string) (int32, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return int32(t.Unix() / 86400), nil
}

// ClampRange fills zero range bounds from the observed day bounds and
// clamps the rest inside them.
func (cs *ColumnStore) ClampRange(from, to int32) (int32, int32) {
	if from == 0 || from < cs.MinDay {
		from = cs.MinDay
	}
	if to == 0 || to > cs.MaxDay {
		to = cs.MaxDay
	}
	return from, to
}

func (cs *ColumnStore) workers() (int, int) {
	numWorkers := runtime.NumCPU()
	chunkSize := len(cs.Days) / numWorkers
	if chunkSize == 0 {
		return 1, len(cs.Days)
	}
	return numWorkers, chunkSize
}

// GlobalSeries sums daily new cases and deaths across every country in
// the range. Days with no reports are omitted, matching a groupby on
// the reported dates.
func (cs *ColumnStore) GlobalSeries(from, to int32) []models.GlobalPoint {
	out := []models.GlobalPoint{}
	if cs.Rows() == 0 {
		return out
	}
	from, to = cs.ClampRange(from, to)
	if to < from {
		return out
	}
	span := int(to-from) + 1

	type partial struct {
		cases  []int64
		deaths []int64
		seen   []bool
	}
	numWorkers, chunkSize := cs.workers()
	results := make(chan *partial, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == numWorkers-1 {
			end = len(cs.Days)
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			p := &partial{
				cases:  make([]int64, span),
				deaths: make([]int64, span),
				seen:   make([]bool, span),
			}
			days := cs.Days
			newC := cs.NewCases
			newD := cs.NewDeaths
			for j := s; j < e; j++ {
				d := days[j]
				if d < from || d > to {
					continue
				}
				idx := d - from
				p.cases[idx] += newC[j]
				p.deaths[idx] += newD[j]
				p.seen[idx] = true
			}
			results <- p
		}(start, end)
	}
	go func() { wg.Wait(); close(results) }()

	finalCases := make([]int64, span)
	finalDeaths := make([]int64, span)
	finalSeen := make([]bool, span)
	for p := range results {
		for i := 0; i < span; i++ {
			finalCases[i] += p.cases[i]
			finalDeaths[i] += p.deaths[i]
			finalSeen[i] = finalSeen[i] || p.seen[i]
		}
	}

	for i := 0; i < span; i++ {
		if !finalSeen[i] {
			continue
		}
		out = append(out, models.GlobalPoint{
			Date:      DayString(from + int32(i)),
			NewCases:  finalCases[i],
			NewDeaths: finalDeaths[i],
		})
	}
	return out
}

// CountrySeries builds the per-day series for one country, with growth
// rate (percent change of metric vs the previous reported day) and case
// fatality ratio. WHO publishes one row per country per day, so numeric
// cells overwrite rather than accumulate.
func (cs *ColumnStore) CountrySeries(countryID int32, metric string, from, to int32) []models.SeriesPoint {
	out := []models.SeriesPoint{}
	if cs.Rows() == 0 {
		return out
	}
	from, to = cs.ClampRange(from, to)
	if to < from {
		return out
	}
	span := int(to-from) + 1

	type partial struct {
		newC, cumC []int64
		newD, cumD []int64
		seen       []bool
	}
	numWorkers, chunkSize := cs.workers()
	results := make(chan *partial, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == numWorkers-1 {
			end = len(cs.Days)
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			p := &partial{
				newC: make([]int64, span), cumC: make([]int64, span),
				newD: make([]int64, span), cumD: make([]int64, span),
				seen: make([]bool, span),
			}
			days := cs.Days
			ids := cs.CountryIDs
			for j := s; j < e; j++ {
				if ids[j] != countryID {
					continue
				}
				d := days[j]
				if d < from || d > to {
					continue
				}
				idx := d - from
				p.newC[idx] = cs.NewCases[j]
				p.cumC[idx] = cs.CumCases[j]
				p.newD[idx] = cs.NewDeaths[j]
				p.cumD[idx] = cs.CumDeaths[j]
				p.seen[idx] = true
			}
			results <- p
		}(start, end)
	}
	go func() { wg.Wait(); close(results) }()

	newC := make([]int64, span)
	cumC := make([]int64, span)
	newD := make([]int64, span)
	cumD := make([]int64, span)
	seen := make([]bool, span)
	for p := range results {
		for i := 0; i < span; i++ {
			if p.seen[i] {
				newC[i] = p.newC[i]
				cumC[i] = p.cumC[i]
				newD[i] = p.newD[i]
				cumD[i] = p.cumD[i]
				seen[i] = true
			}
		}
	}

	var prev int64
	havePrev := false
	for i := 0; i < span; i++ {
		if !seen[i] {
			continue
		}
		pt := models.SeriesPoint{
			Date:      DayString(from + int32(i)),
			NewCases:  newC[i],
			NewDeaths: newD[i],
			CumCases:  cumC[i],
			CumDeaths: cumD[i],
		}
		cur := newC[i]
		if metric == "new_deaths" {
			cur = newD[i]
		}
		if havePrev && prev != 0 {
			pt.GrowthRate = float64(cur-prev) / float64(prev)
		}
		prev, havePrev = cur, true
		if cumC[i] > 0 {
			pt.CFR = float64(cumD[i]) / float64(cumC[i])
		}
		out = append(out, pt)
	}
	return out
}

// CountryTotals sums the metric column per country over the range.
// The result is indexed by country ID.
func (cs *ColumnStore) CountryTotals(metric string, from, to int32) []int64 {
	totals := make([]int64, len(cs.CountryDict))
	if cs.Rows() == 0 {
		return totals
	}
	from, to = cs.ClampRange(from, to)
	if to < from {
		return totals
	}
	col, ok := cs.MetricColumn(metric)
	if !ok {
		col = cs.NewCases
	}

	numWorkers, chunkSize := cs.workers()
	results := make(chan []int64, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == numWorkers-1 {
			end = len(cs.Days)
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			p := make([]int64, len(cs.CountryDict))
			days := cs.Days
			ids := cs.CountryIDs
			for j := s; j < e; j++ {
				d := days[j]
				if d < from || d > to {
					continue
				}
				p[ids[j]] += col[j]
			}
			results <- p
		}(start, end)
	}
	go func() { wg.Wait(); close(results) }()

	for p := range results {
		for i, v := range p {
			totals[i] += v
		}
	}
	return totals
}

// TopCountries ranks countries by summed metric over the range. Included
// IDs are flagged and appended even when they miss the cut, so the
// selected countries always appear in the chart.
func (cs *ColumnStore) TopCountries(metric string, from, to int32, limit int, include []int32) []models.RankEntry {
	totals := cs.CountryTotals(metric, from, to)

	entries := make([]models.RankEntry, 0, len(totals))
	for id, total := range totals {
		entries = append(entries, models.RankEntry{
			Code:  cs.CodeDict[id],
			Name:  cs.CountryDict[id],
			Total: total,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Total > entries[j].Total })

	selected := make(map[string]bool, len(include))
	for _, id := range include {
		selected[cs.CodeDict[id]] = true
	}

	if limit > 0 && limit < len(entries) {
		top := entries[:limit]
		for _, e := range entries[limit:] {
			if selected[e.Code] {
				top = append(top, e)
			}
		}
		entries = top
	}
	for i := range entries {
		entries[i].Selected = selected[entries[i].Code]
	}
	return entries
}

// Summary computes the global snapshot for the range. Cumulative totals
// are taken from each country's last reported day inside the range.
func (cs *ColumnStore) Summary(from, to int32) models.Summary {
	if cs.Rows() == 0 {
		return models.Summary{}
	}
	from, to = cs.ClampRange(from, to)
	numCountries := len(cs.CountryDict)

	type partial struct {
		newCases  int64
		newDeaths int64
		rows      int
		lastDay   []int32
		lastCumC  []int64
		lastCumD  []int64
	}
	numWorkers, chunkSize := cs.workers()
	results := make(chan *partial, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == numWorkers-1 {
			end = len(cs.Days)
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			p := &partial{
				lastDay:  make([]int32, numCountries),
				lastCumC: make([]int64, numCountries),
				lastCumD: make([]int64, numCountries),
			}
			for i := range p.lastDay {
				p.lastDay[i] = -1
			}
			days := cs.Days
			ids := cs.CountryIDs
			for j := s; j < e; j++ {
				d := days[j]
				if d < from || d > to {
					continue
				}
				cid := ids[j]
				p.newCases += cs.NewCases[j]
				p.newDeaths += cs.NewDeaths[j]
				p.rows++
				if d > p.lastDay[cid] {
					p.lastDay[cid] = d
					p.lastCumC[cid] = cs.CumCases[j]
					p.lastCumD[cid] = cs.CumDeaths[j]
				}
			}
			results <- p
		}(start, end)
	}
	go func() { wg.Wait(); close(results) }()

	sum := models.Summary{
		Countries: numCountries,
		FirstDate: DayString(from),
		LastDate:  DayString(to),
	}
	lastDay := make([]int32, numCountries)
	lastCumC := make([]int64, numCountries)
	lastCumD := make([]int64, numCountries)
	for i := range lastDay {
		lastDay[i] = -1
	}
	for p := range results {
		sum.NewCases += p.newCases
		sum.NewDeaths += p.newDeaths
		sum.Rows += p.rows
		for i := 0; i < numCountries; i++ {
			if p.lastDay[i] > lastDay[i] {
				lastDay[i] = p.lastDay[i]
				lastCumC[i] = p.lastCumC[i]
				lastCumD[i] = p.lastCumD[i]
			}
		}
	}
	for i := 0; i < numCountries; i++ {
		if lastDay[i] >= 0 {
			sum.TotalCases += lastCumC[i]
			sum.TotalDeaths += lastCumD[i]
		}
	}
	return sum
}

// SeriesMetrics reduces a country series to its peak and mean for the
// insight cards.
func SeriesMetrics(series []models.SeriesPoint, metric string) models.KeyMetrics {
	var m models.KeyMetrics
	if len(series) == 0 {
		return m
	}
	var sum float64
	for _, pt := range series {
		v := float64(pt.NewCases)
		if metric == "new_deaths" {
			v = float64(pt.NewDeaths)
		}
		if v > m.Peak {
			m.Peak = v
		}
		sum += v
	}
	m.Mean = sum / float64(len(series))
	return m
}
