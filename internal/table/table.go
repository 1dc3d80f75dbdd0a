// Package table assembles page-sized views of the advocate directory for a
// single browsing session.
//
// Unfiltered browsing is served from a client-side cache keyed by absolute
// record index. The cache fills in large batches: the batch covering the
// requested page is fetched first, earlier batches are backfilled in the
// background and the batch after the next page is prefetched. Once any
// server-side filter is set the table switches to plain server pagination.
package table

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/simp-lee/advocatedir/internal/client"
	"github.com/simp-lee/advocatedir/internal/criteria"
	"github.com/simp-lee/advocatedir/internal/domain"
)

// DefaultBatchSize is the number of records fetched per cache batch.
const DefaultBatchSize = 500

// FallbackError is shown when a failure carries no usable message.
const FallbackError = "Failed to fetch advocates"

// Fetcher is the slice of the API the table needs. *client.Client satisfies it.
type Fetcher interface {
	ListAdvocates(ctx context.Context, q client.ListQuery) (*client.Page, error)
	FilterOptions(ctx context.Context) (*domain.FilterOptions, error)
}

// Option customizes a Table.
type Option func(*Table)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithNotifier sets where one-time notices go.
func WithNotifier(n Notifier) Option {
	return func(t *Table) {
		if n != nil {
			t.notifier = n
		}
	}
}

// WithLogger sets the logger for background fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// View is one rendered page plus everything a pager needs.
type View struct {
	Advocates          []domain.AdvocateWithRelations
	Page               int
	PageSize           int
	TotalRecords       int64
	LoadedRecords      int
	TotalPages         int
	HasPrevious        bool
	HasNext            bool
	VisiblePageNumbers []int
	ActiveFilters      []ActiveFilter
	// ServerFiltered is true when the page came straight from a filtered
	// server query rather than the client cache.
	ServerFiltered bool
	// Backfilling is true while batches ahead of this page are still
	// loading, so a sorted or filtered page may still be short.
	Backfilling bool
	Error       string
}

// Empty reports a finished, successful load with no rows, as opposed to a
// failure or a page still waiting on backfill.
func (v View) Empty() bool {
	return v.Error == "" && !v.Backfilling && len(v.Advocates) == 0
}

// Stats is a snapshot of the cache bookkeeping.
type Stats struct {
	CachedRecords int
	LoadedBatches []int
	TotalCount    int64
	// BackfillBatch is the batch being backfilled, or 0 when idle.
	BackfillBatch int
}

// Table owns the client cache for one session. It is safe for concurrent
// use; call Close when done to stop background fetches.
type Table struct {
	fetcher   Fetcher
	batchSize int
	notifier  Notifier
	logger    *slog.Logger

	// ctx scopes background fetches and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	group  singleflight.Group

	mu             sync.Mutex
	records        map[int]domain.AdvocateWithRelations
	loadedBatches  map[int]struct{}
	totalCount     int64
	counted        bool
	backfillBatch  int
	backfillTarget int
	backfilling    bool
	options        *domain.FilterOptions
	successShown   bool
	errorShown     bool
}

// New creates an empty Table reading from f.
func New(f Fetcher, opts ...Option) *Table {
	if f == nil {
		panic("table: nil fetcher")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Table{
		fetcher:       f,
		batchSize:     DefaultBatchSize,
		notifier:      nopNotifier{},
		logger:        slog.Default(),
		ctx:           ctx,
		cancel:        cancel,
		records:       make(map[int]domain.AdvocateWithRelations),
		loadedBatches: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Close cancels background fetches and waits for them to finish.
func (t *Table) Close() {
	t.cancel()
	t.wg.Wait()
}

// Wait blocks until all background backfill and prefetch work has finished.
func (t *Table) Wait() {
	t.wg.Wait()
}

// Stats returns a snapshot of the cache bookkeeping.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		CachedRecords: len(t.records),
		LoadedBatches: slices.Sorted(maps.Keys(t.loadedBatches)),
		TotalCount:    t.totalCount,
		BackfillBatch: t.backfillBatch,
	}
}

// Load renders the page described by s. It blocks only on the request that
// produces the visible page and never panics on fetch failures: they are
// reported through View.Error.
func (t *Table) Load(ctx context.Context, s State) View {
	s = s.normalized()
	opts := t.filterOptions(ctx)

	var v View
	if s.FiltersActive() {
		v = t.loadFiltered(ctx, s)
	} else {
		v = t.loadCached(ctx, s)
	}
	v.ActiveFilters = ActiveFilters(s, opts)
	return v
}

func (t *Table) loadFiltered(ctx context.Context, s State) View {
	q := client.ListQuery{Page: s.Page, PageSize: s.PageSize, Filters: s.Filters(), Sort: s.Sort}
	page, err := t.fetcher.ListAdvocates(ctx, q)
	if err == nil && page.Pagination.TotalPages > 0 && s.Page > page.Pagination.TotalPages {
		q.Page = page.Pagination.TotalPages
		page, err = t.fetcher.ListAdvocates(ctx, q)
	}
	if err != nil {
		return t.failed(s, err)
	}

	p := page.Pagination
	return View{
		Advocates:          page.Data,
		Page:               p.CurrentPage,
		PageSize:           p.PageSize,
		TotalRecords:       p.TotalRecords,
		LoadedRecords:      int(p.TotalRecords),
		TotalPages:         p.TotalPages,
		HasPrevious:        p.HasPrevious,
		HasNext:            p.HasNext,
		VisiblePageNumbers: VisiblePageNumbers(p.CurrentPage, p.TotalPages),
		ServerFiltered:     true,
	}
}

func (t *Table) loadCached(ctx context.Context, s State) View {
	if err := t.ensureBatch(ctx, s); err != nil {
		return t.failed(s, err)
	}

	pending := t.missingBefore(s)
	rows, total := t.render(s)
	totalPages := pageCount(total, s.PageSize)
	if totalPages > 0 && s.Page > totalPages {
		s.Page = totalPages
		if err := t.ensureBatch(ctx, s); err != nil {
			return t.failed(s, err)
		}
		pending = t.missingBefore(s)
		rows, total = t.render(s)
	}

	t.mu.Lock()
	loaded := len(t.records)
	t.mu.Unlock()

	return View{
		Advocates:          rows,
		Page:               s.Page,
		PageSize:           s.PageSize,
		TotalRecords:       total,
		LoadedRecords:      loaded,
		TotalPages:         totalPages,
		HasPrevious:        s.Page > 1,
		HasNext:            s.Page < totalPages,
		VisiblePageNumbers: VisiblePageNumbers(s.Page, totalPages),
		Backfilling:        pending,
	}
}

// missingBefore reports whether any batch ahead of the one covering s.Page
// is not cached yet.
func (t *Table) missingBefore(s State) bool {
	needed := t.batchFor(s.Page, s.PageSize)
	t.mu.Lock()
	upTo := min(needed-1, t.lastBatchLocked())
	t.mu.Unlock()
	return upTo > 0 && t.earliestMissing(upTo) > 0
}

// batchFor returns the 1-based batch holding the first record of page.
func (t *Table) batchFor(page, pageSize int) int {
	return (page-1)*pageSize/t.batchSize + 1
}

// ensureBatch fetches the batch covering s.Page when it is missing and
// schedules backfill and prefetch around it. Nothing is scheduled for a page
// past the last record; the caller clamps it and asks again.
func (t *Table) ensureBatch(ctx context.Context, s State) error {
	needed := t.batchFor(s.Page, s.PageSize)

	if !t.isLoaded(needed) && !t.pastEnd(needed) {
		if err := t.fetchBatch(ctx, needed); err != nil {
			return err
		}
		t.noteSuccess()
	}
	if t.pastEnd(needed) {
		return nil
	}

	if needed > 1 && t.earliestMissing(needed-1) > 0 {
		t.startBackfill(needed - 1)
	}
	t.maybePrefetch(s)
	return nil
}

// pastEnd reports whether batch starts beyond the last record. It is false
// until some response has reported the total.
func (t *Table) pastEnd(batch int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counted && batch > t.lastBatchLocked()
}

// lastBatchLocked returns the batch holding the last record, or 0 when the
// result set is empty.
func (t *Table) lastBatchLocked() int {
	return int((t.totalCount + int64(t.batchSize) - 1) / int64(t.batchSize))
}

func (t *Table) isLoaded(batch int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.loadedBatches[batch]
	return ok
}

// earliestMissing returns the first unloaded batch in 1..upTo, or 0.
func (t *Table) earliestMissing(upTo int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for b := 1; b <= upTo; b++ {
		if _, ok := t.loadedBatches[b]; !ok {
			return b
		}
	}
	return 0
}

// fetchBatch loads one batch. Concurrent calls for the same batch share a
// single request.
func (t *Table) fetchBatch(ctx context.Context, batch int) error {
	_, err, _ := t.group.Do("batch:"+strconv.Itoa(batch), func() (any, error) {
		if t.isLoaded(batch) {
			return nil, nil
		}
		page, err := t.fetcher.ListAdvocates(ctx, client.ListQuery{Page: batch, PageSize: t.batchSize})
		if err != nil {
			return nil, err
		}
		t.merge(batch, page)
		return nil, nil
	})
	return err
}

// merge adds a batch to the cache. Indices already present are kept, so
// merging the same batch twice changes nothing. An empty batch past the end
// only records the total.
func (t *Table) merge(batch int, page *client.Page) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalCount = page.Pagination.TotalRecords
	t.counted = true
	if len(page.Data) == 0 && batch > t.lastBatchLocked() {
		return
	}
	base := (batch - 1) * t.batchSize
	for i, rec := range page.Data {
		if _, ok := t.records[base+i]; !ok {
			t.records[base+i] = rec
		}
	}
	t.loadedBatches[batch] = struct{}{}
}

// startBackfill makes sure batches 1..upTo get loaded in the background.
// A running backfill has its target raised instead of starting a second one.
func (t *Table) startBackfill(upTo int) {
	t.mu.Lock()
	t.backfillTarget = max(t.backfillTarget, upTo)
	if t.backfilling {
		t.mu.Unlock()
		return
	}
	t.backfilling = true
	t.mu.Unlock()

	t.wg.Go(t.runBackfill)
}

func (t *Table) runBackfill() {
	for b := 1; ; b++ {
		t.mu.Lock()
		if b > t.backfillTarget || b > t.lastBatchLocked() || t.ctx.Err() != nil {
			t.stopBackfillLocked()
			t.mu.Unlock()
			return
		}
		if _, ok := t.loadedBatches[b]; ok {
			t.mu.Unlock()
			continue
		}
		t.backfillBatch = b
		t.mu.Unlock()

		if err := t.fetchBatch(t.ctx, b); err != nil {
			if !errors.Is(err, context.Canceled) {
				t.logger.Warn("backfill failed", slog.Int("batch", b), slog.Any("error", err))
			}
			t.mu.Lock()
			t.stopBackfillLocked()
			t.mu.Unlock()
			return
		}
	}
}

func (t *Table) stopBackfillLocked() {
	t.backfillBatch = 0
	t.backfillTarget = 0
	t.backfilling = false
}

// maybePrefetch loads the batch after the one page+1 needs, once that batch
// is in and the next one exists.
func (t *Table) maybePrefetch(s State) {
	next := t.batchFor(s.Page+1, s.PageSize)
	target := next + 1

	t.mu.Lock()
	_, haveNext := t.loadedBatches[next]
	_, haveTarget := t.loadedBatches[target]
	exists := int64(next*t.batchSize) < t.totalCount
	t.mu.Unlock()

	if !haveNext || haveTarget || !exists {
		return
	}
	t.wg.Go(func() {
		if err := t.fetchBatch(t.ctx, target); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Warn("prefetch failed", slog.Int("batch", target), slog.Any("error", err))
		}
	})
}

// render slices the visible page out of the cache and returns it with the
// total the pager should use.
func (t *Table) render(s State) ([]domain.AdvocateWithRelations, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := s.Filters()
	start := (s.Page - 1) * s.PageSize

	// Absolute indices line up with server order only under the default sort
	// with nothing filtered client-side.
	if len(f.AreaCodes) == 0 && s.Sort == domain.DefaultSort() {
		rows := make([]domain.AdvocateWithRelations, 0, s.PageSize)
		for i := start; i < start+s.PageSize; i++ {
			if rec, ok := t.records[i]; ok {
				rows = append(rows, rec)
			}
		}
		return rows, t.totalCount
	}

	ordered := make([]domain.AdvocateWithRelations, 0, len(t.records))
	for _, i := range slices.Sorted(maps.Keys(t.records)) {
		ordered = append(ordered, t.records[i])
	}
	ordered = criteria.Filter(f, ordered)
	if s.Sort.Column != domain.SortCreatedAt {
		sortAdvocates(ordered, s.Sort)
	}

	total := int64(len(ordered))
	if len(f.AreaCodes) == 0 {
		total = t.totalCount
	}
	if start >= len(ordered) {
		return []domain.AdvocateWithRelations{}, total
	}
	return ordered[start:min(start+s.PageSize, len(ordered))], total
}

func sortAdvocates(rows []domain.AdvocateWithRelations, s domain.Sort) {
	key := func(a domain.AdvocateWithRelations) string {
		switch s.Column {
		case domain.SortFirstName:
			return strings.ToLower(a.FirstName)
		case domain.SortLastName:
			return strings.ToLower(a.LastName)
		case domain.SortCity:
			if a.City != nil {
				return strings.ToLower(a.City.Name)
			}
		case domain.SortDegree:
			if a.Degree != nil {
				return strings.ToLower(a.Degree.Name)
			}
		}
		return ""
	}
	slices.SortStableFunc(rows, func(a, b domain.AdvocateWithRelations) int {
		var c int
		if s.Column == domain.SortYearsOfExperience {
			c = cmp.Compare(a.YearsOfExperience, b.YearsOfExperience)
		} else {
			c = strings.Compare(key(a), key(b))
		}
		if s.Direction == domain.SortDesc {
			c = -c
		}
		return c
	})
}

// filterOptions fetches the option lists until one fetch succeeds.
func (t *Table) filterOptions(ctx context.Context) *domain.FilterOptions {
	t.mu.Lock()
	opts := t.options
	t.mu.Unlock()
	if opts != nil {
		return opts
	}

	v, err, _ := t.group.Do("filter-options", func() (any, error) {
		return t.fetcher.FilterOptions(ctx)
	})
	if err != nil {
		t.logger.Warn("filter options unavailable", slog.Any("error", err))
		return nil
	}
	opts, _ = v.(*domain.FilterOptions)

	t.mu.Lock()
	t.options = opts
	t.mu.Unlock()
	return opts
}

func (t *Table) noteSuccess() {
	t.mu.Lock()
	if t.successShown {
		t.mu.Unlock()
		return
	}
	t.successShown = true
	total := t.totalCount
	t.mu.Unlock()

	t.notifier.Notify(Notice{Level: NoticeSuccess, Message: fmt.Sprintf("Loaded %d advocates", total)})
}

func (t *Table) failed(s State, err error) View {
	msg := strings.TrimSpace(client.Message(err))
	if msg == "" {
		msg = FallbackError
	}

	t.mu.Lock()
	first := !t.errorShown
	t.errorShown = true
	t.mu.Unlock()
	if first {
		t.notifier.Notify(Notice{Level: NoticeError, Message: msg})
	}

	return View{
		Advocates:      []domain.AdvocateWithRelations{},
		Page:           s.Page,
		PageSize:       s.PageSize,
		ServerFiltered: s.FiltersActive(),
		Error:          msg,
	}
}

func pageCount(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
