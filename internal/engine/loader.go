package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"
	"unsafe"
)

// --- 1. FAST ZERO-ALLOC PARSERS ---

func unsafeToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// fastCount parses an optionally signed integer. Empty input is zero;
// WHO publishes negative daily counts as retro-corrections, keep them.
func fastCount(b []byte) int64 {
	var n int64
	neg := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// fastDay parses "2021-07-25" into days since the Unix epoch.
func fastDay(b []byte) int32 {
	if len(b) < 10 {
		return 0
	}
	// Optimistically assumes fixed format YYYY-MM-DD
	y := int32(b[0]-'0')*1000 + int32(b[1]-'0')*100 + int32(b[2]-'0')*10 + int32(b[3]-'0')
	m := int32(b[5]-'0')*10 + int32(b[6]-'0')
	d := int32(b[8]-'0')*10 + int32(b[9]-'0')
	return civilDay(y, m, d)
}

// civilDay converts a calendar date to days since 1970-01-01
// (days-from-civil algorithm).
func civilDay(y, m, d int32) int32 {
	if m <= 2 {
		y--
	}
	era := y / 400
	yoe := y - era*400
	var doy int32
	if m > 2 {
		doy = (153*(m-3)+2)/5 + d - 1
	} else {
		doy = (153*(m+9)+2)/5 + d - 1
	}
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// cutField splits off the next comma-separated field. Country names like
// "Bonaire, Sint Eustatius and Saba" arrive quoted, so a leading quote
// switches to quote-delimited scanning.
func cutField(b []byte) (field, rest []byte, found bool) {
	if len(b) > 0 && b[0] == '"' {
		if end := bytes.IndexByte(b[1:], '"'); end != -1 {
			field = b[1 : 1+end]
			rest = b[2+end:]
			if len(rest) > 0 && rest[0] == ',' {
				return field, rest[1:], true
			}
			return field, nil, false
		}
	}
	return bytes.Cut(b, commaSep)
}

var commaSep = []byte{','}

// --- 2. MAIN LOADER ---

// Load reads and parses a WHO CSV file from disk.
func Load(path string) (*ColumnStore, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return LoadBytes(content)
}

// Open resolves the dataset from the first source that works: the local
// path, then the DATA_URL environment variable, then fallbackURL. The
// chain mirrors how the dashboard is deployed with the CSV either next
// to the binary or published at a public URL.
func Open(ctx context.Context, path, fallbackURL string) (*ColumnStore, error) {
	var errs []error
	if path != "" {
		cs, err := Load(path)
		if err == nil {
			return cs, nil
		}
		errs = append(errs, err)
	}
	for _, u := range []string{os.Getenv("DATA_URL"), fallbackURL} {
		if u == "" {
			continue
		}
		cs, err := fetch(ctx, u)
		if err == nil {
			return cs, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no data source configured")
	}
	return nil, fmt.Errorf("no usable data source: %w", errors.Join(errs...))
}

func fetch(ctx context.Context, url string) (*ColumnStore, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch dataset %s: status %s", url, resp.Status)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", url, err)
	}
	return LoadBytes(content)
}

// LoadBytes parses WHO CSV content (Parallel Unrolled) into a ColumnStore.
// Expected columns: Date_reported, Country_code, Country, WHO_region,
// New_cases, Cumulative_cases, New_deaths, Cumulative_deaths.
func LoadBytes(content []byte) (*ColumnStore, error) {
	// Skip the header row.
	if idx := bytes.IndexByte(content, '\n'); idx != -1 {
		content = content[idx+1:]
	} else {
		return nil, errors.New("dataset has no data rows")
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.New("dataset has no data rows")
	}
	// Guarantee a trailing newline so the row count sees the last line.
	if content[len(content)-1] != '\n' {
		content = append(content, '\n')
	}

	numWorkers := runtime.NumCPU()
	chunkSize := len(content) / numWorkers
	if chunkSize == 0 {
		numWorkers = 1
		chunkSize = len(content)
	}

	// A. Count Rows (Parallel) for Exact Allocation
	rowCounts := make([]int, numWorkers)
	var countWg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		countWg.Add(1)
		go func(idx int, start, end int) {
			defer countWg.Done()
			// Align to newlines
			if start > 0 {
				if i := bytes.IndexByte(content[start:], '\n'); i != -1 {
					start += i + 1
				}
			}
			if end < len(content) {
				if i := bytes.IndexByte(content[end:], '\n'); i != -1 {
					end += i + 1
				} else {
					end = len(content)
				}
			}
			if start < end {
				rowCounts[idx] = bytes.Count(content[start:end], []byte{'\n'})
			}
		}(i, i*chunkSize, (i+1)*chunkSize)
	}
	countWg.Wait()

	totalRows := 0
	for _, c := range rowCounts {
		totalRows += c
	}

	// B. Allocate Store ONCE
	store := &ColumnStore{
		Days:       make([]int32, totalRows),
		NewCases:   make([]int64, totalRows),
		CumCases:   make([]int64, totalRows),
		NewDeaths:  make([]int64, totalRows),
		CumDeaths:  make([]int64, totalRows),
		CountryIDs: make([]int32, totalRows),
		RegionIDs:  make([]int32, totalRows),
	}

	offsets := make([]int, numWorkers)
	curr := 0
	for i, c := range rowCounts {
		offsets[i] = curr
		curr += c
	}

	// C. Parallel Parsing (Unrolled)
	type localDicts struct {
		cMap  map[string]int32 // keyed on ISO2 code
		codes []string
		names []string
		rMap  map[string]int32
		rList []string
		idsC  []int32
		idsR  []int32
	}
	workerDicts := make([]*localDicts, numWorkers)
	rowsWritten := make([]int, numWorkers)

	var parseWg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		parseWg.Add(1)
		go func(idx int, start, end int, writeOffset int) {
			defer parseWg.Done()

			ld := &localDicts{
				cMap: make(map[string]int32), rMap: make(map[string]int32),
				idsC: make([]int32, rowCounts[idx]), idsR: make([]int32, rowCounts[idx]),
			}
			workerDicts[idx] = ld

			// Align chunk again
			if start > 0 {
				if i := bytes.IndexByte(content[start:], '\n'); i != -1 {
					start += i + 1
				}
			}
			if end < len(content) {
				if i := bytes.IndexByte(content[end:], '\n'); i != -1 {
					end += i + 1
				} else {
					end = len(content)
				}
			}

			chunk := content[start:end]
			pos := 0
			row := 0

			// HOT LOOP: Unrolled field hopping, no per-row allocation
			// outside dictionary misses.
			for pos < len(chunk) {
				nextPos := -1
				if i := bytes.IndexByte(chunk[pos:], '\n'); i != -1 {
					nextPos = pos + i
				} else {
					nextPos = len(chunk)
				}

				line := chunk[pos:nextPos]
				pos = nextPos + 1

				// CRLF exports are common with this dataset.
				if n := len(line); n > 0 && line[n-1] == '\r' {
					line = line[:n-1]
				}
				if len(line) == 0 {
					continue
				}

				var field []byte
				var rest = line
				var found bool

				// 0: Date_reported (KEEP)
				if field, rest, found = cutField(rest); !found {
					continue
				}
				store.Days[writeOffset+row] = fastDay(field)

				// 1: Country_code (KEEP - dictionary key)
				var codeField []byte
				if codeField, rest, found = cutField(rest); !found {
					continue
				}

				// 2: Country (KEEP - name for the code's dictionary slot)
				if field, rest, found = cutField(rest); found {
					s := unsafeToString(codeField)
					if id, ok := ld.cMap[s]; ok {
						ld.idsC[row] = id
					} else {
						id = int32(len(ld.codes))
						code := string(codeField) // Allocate for dict
						ld.codes = append(ld.codes, code)
						ld.names = append(ld.names, string(field))
						ld.cMap[code] = id
						ld.idsC[row] = id
					}
				}

				// 3: WHO_region (KEEP)
				if field, rest, found = cutField(rest); found {
					s := unsafeToString(field)
					if id, ok := ld.rMap[s]; ok {
						ld.idsR[row] = id
					} else {
						id = int32(len(ld.rList))
						str := string(field)
						ld.rList = append(ld.rList, str)
						ld.rMap[str] = id
						ld.idsR[row] = id
					}
				}

				// 4: New_cases (KEEP)
				if field, rest, found = cutField(rest); found {
					store.NewCases[writeOffset+row] = fastCount(field)
				}

				// 5: Cumulative_cases (KEEP)
				if field, rest, found = cutField(rest); found {
					store.CumCases[writeOffset+row] = fastCount(field)
				}

				// 6: New_deaths (KEEP)
				field, rest, found = cutField(rest)
				store.NewDeaths[writeOffset+row] = fastCount(field)
				if !found {
					// Truncated row, no Cumulative_deaths column
					row++
					continue
				}

				// 7: Cumulative_deaths (KEEP - last field)
				store.CumDeaths[writeOffset+row] = fastCount(rest)

				row++
			}
			rowsWritten[idx] = row
		}(i, i*chunkSize, (i+1)*chunkSize, offsets[i])
	}
	parseWg.Wait()

	// D. Compact Slots the Count Pass Saw but the Parse Pass Skipped
	// The newline count includes blank and truncated lines; the parse
	// loop drops those, so Rows() must only reflect lines that parsed.
	curr = 0
	for w := 0; w < numWorkers; w++ {
		n := rowsWritten[w]
		if curr != offsets[w] {
			copy(store.Days[curr:curr+n], store.Days[offsets[w]:offsets[w]+n])
			copy(store.NewCases[curr:curr+n], store.NewCases[offsets[w]:offsets[w]+n])
			copy(store.CumCases[curr:curr+n], store.CumCases[offsets[w]:offsets[w]+n])
			copy(store.NewDeaths[curr:curr+n], store.NewDeaths[offsets[w]:offsets[w]+n])
			copy(store.CumDeaths[curr:curr+n], store.CumDeaths[offsets[w]:offsets[w]+n])
		}
		offsets[w] = curr
		curr += n
	}
	if curr == 0 {
		return nil, errors.New("dataset has no data rows")
	}
	if curr < totalRows {
		store.Days = store.Days[:curr]
		store.NewCases = store.NewCases[:curr]
		store.CumCases = store.CumCases[:curr]
		store.NewDeaths = store.NewDeaths[:curr]
		store.CumDeaths = store.CumDeaths[:curr]
		store.CountryIDs = store.CountryIDs[:curr]
		store.RegionIDs = store.RegionIDs[:curr]
	}

	// E. Merge Dictionaries (Parallel)
	var dictWg sync.WaitGroup
	dictWg.Add(2)

	// Country merge carries the aligned code and name lists together.
	go func() {
		defer dictWg.Done()
		gMap := make(map[string]int32)
		store.CodeDict = make([]string, 0, 256)
		store.CountryDict = make([]string, 0, 256)
		remaps := make([][]int32, numWorkers)

		for w := 0; w < numWorkers; w++ {
			ld := workerDicts[w]
			remaps[w] = make([]int32, len(ld.codes))
			for lid, code := range ld.codes {
				if gid, exists := gMap[code]; exists {
					remaps[w][lid] = gid
				} else {
					gid = int32(len(store.CodeDict))
					store.CodeDict = append(store.CodeDict, code)
					store.CountryDict = append(store.CountryDict, ld.names[lid])
					gMap[code] = gid
					remaps[w][lid] = gid
				}
			}
		}
		for w := 0; w < numWorkers; w++ {
			localIDs := workerDicts[w].idsC[:rowsWritten[w]]
			dest := store.CountryIDs[offsets[w] : offsets[w]+len(localIDs)]
			remap := remaps[w]
			for k, id := range localIDs {
				dest[k] = remap[id]
			}
		}
	}()

	go func() {
		defer dictWg.Done()
		gMap := make(map[string]int32)
		store.RegionDict = make([]string, 0, 8)
		remaps := make([][]int32, numWorkers)

		for w := 0; w < numWorkers; w++ {
			ld := workerDicts[w]
			remaps[w] = make([]int32, len(ld.rList))
			for lid, s := range ld.rList {
				if gid, exists := gMap[s]; exists {
					remaps[w][lid] = gid
				} else {
					gid = int32(len(store.RegionDict))
					store.RegionDict = append(store.RegionDict, s)
					gMap[s] = gid
					remaps[w][lid] = gid
				}
			}
		}
		for w := 0; w < numWorkers; w++ {
			localIDs := workerDicts[w].idsR[:rowsWritten[w]]
			dest := store.RegionIDs[offsets[w] : offsets[w]+len(localIDs)]
			remap := remaps[w]
			for k, id := range localIDs {
				dest[k] = remap[id]
			}
		}
	}()

	dictWg.Wait()

	// F. Day bounds for range defaults and aggregation array sizing
	store.MinDay, store.MaxDay = store.Days[0], store.Days[0]
	for _, d := range store.Days {
		if d < store.MinDay {
			store.MinDay = d
		}
		if d > store.MaxDay {
			store.MaxDay = d
		}
	}

	return store, nil
}
