package estimator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fabianabarca/estimator/downloader"
	"github.com/fabianabarca/estimator/model"
	"github.com/fabianabarca/estimator/parse"
	"github.com/fabianabarca/estimator/storage"
)

const (
	DefaultInputTimeout = 60 * time.Second
	DefaultInputMaxSize = 800 << 20 // 800 MB
	DefaultCacheTTL     = 12 * time.Hour

	// Downloads kept by the default in-memory cache.
	DefaultCacheEntries = 8
)

var ErrNoCurveSet = errors.New("no curve set found")

// Manager loads estimator input and keeps fitted curve sets in
// storage, so that curves can be reused across runs.
type Manager struct {
	InputTimeout time.Duration
	InputMaxSize int
	CacheTTL     time.Duration
	Downloader   downloader.Downloader

	Fitter *Fitter
	Logger *slog.Logger

	storage storage.Storage
}

// Creates a new Manager on top of the given storage.
//
// By default, downloads are cached in memory, which only helps when
// input and GTFS feed are fetched from the same URL.
func NewManager(s storage.Storage) *Manager {
	d := downloader.NewMemoryDownloader()
	d.MaxEntries = DefaultCacheEntries

	return &Manager{
		InputTimeout: DefaultInputTimeout,
		InputMaxSize: DefaultInputMaxSize,
		CacheTTL:     DefaultCacheTTL,
		Downloader:   d,
		Fitter:       NewFitter(),

		storage: s,
	}
}

// Loads input tables from a directory, a zip file or a URL to a zip
// file. If gtfsSource is set, the GTFS feed found there fills in any
// tables missing from the input.
func (m *Manager) Load(
	ctx context.Context,
	source string,
	gtfsSource string,
	headers map[string]string,
) (*parse.Tables, error) {
	var tables *parse.Tables

	info, err := os.Stat(source)
	if err == nil && info.IsDir() {
		tables, err = parse.ParseDirectory(source)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", source, err)
		}
	} else {
		buf, err := m.fetch(ctx, source, headers, true)
		if err != nil {
			return nil, err
		}
		tables, err = parse.ParseArchive(buf)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", source, err)
		}
	}

	if gtfsSource != "" {
		feed, err := m.LoadGTFS(ctx, gtfsSource, headers)
		if err != nil {
			return nil, err
		}
		tables.Merge(feed)
	}

	m.logger().Info(
		"loaded input",
		slog.String("source", source),
		slog.String("gtfs", gtfsSource),
		slog.Int("observations", len(tables.Observations)),
		slog.Int("route_stops", len(tables.RouteStops)),
		slog.Int("scheduled_trips", len(tables.ScheduledTrips)),
		slog.Int("trips", len(tables.Trips)),
	)

	return tables, nil
}

// Loads route stops, scheduled trips and trip metadata from a GTFS
// static feed, local or URL.
func (m *Manager) LoadGTFS(ctx context.Context, source string, headers map[string]string) (*parse.Tables, error) {
	buf, err := m.fetch(ctx, source, headers, true)
	if err != nil {
		return nil, err
	}

	tables, err := parse.ParseGTFS(buf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	return tables, nil
}

// Fetches GTFS Realtime feeds and records the arrivals their trip
// updates report. Route, service and shape of each trip are taken
// from trips. Feeds are never cached.
func (m *Manager) Record(
	ctx context.Context,
	feeds []string,
	trips []model.TripMetadata,
	headers map[string]string,
	loc *time.Location,
) (*parse.Realtime, error) {
	data := make([][]byte, 0, len(feeds))
	for _, feed := range feeds {
		buf, err := m.fetch(ctx, feed, headers, false)
		if err != nil {
			return nil, err
		}
		data = append(data, buf)
	}

	rt, err := parse.ParseRealtime(data, trips, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime: %w", err)
	}

	m.logger().Info(
		"recorded arrivals",
		slog.Int("feeds", len(feeds)),
		slog.Uint64("timestamp", rt.Timestamp),
		slog.Int("observations", len(rt.Observations)),
		slog.Int("scheduled_trips", rt.NumScheduledTrips),
		slog.Int("unknown_trips", rt.NumUnknownTrips),
		slog.Int("canceled_trips", rt.NumCanceledTrips),
	)

	return rt, nil
}

func (m *Manager) fetch(ctx context.Context, source string, headers map[string]string, cache bool) ([]byte, error) {
	d := m.Downloader
	if d == nil {
		d = downloader.NewMemoryDownloader()
	}

	buf, err := downloader.Fetch(ctx, d, source, headers, downloader.GetOptions{
		Timeout:  m.InputTimeout,
		MaxSize:  m.InputMaxSize,
		Cache:    cache,
		CacheTTL: m.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source, err)
	}

	return buf, nil
}

// Fits curves from the observations and stores them as a new curve
// set. If a set fitted from identical observations with the same
// degree exists, it is returned instead. In strict mode the
// observations are checked for timepoints first, so a set stored by a
// lenient fit doesn't mask ErrReferenceNotFound.
func (m *Manager) Fit(
	source string,
	observations []model.Observation,
	when time.Time,
) (*storage.CurveSet, Curves, error) {
	fitter := m.fitter()
	if fitter.Strict {
		if _, err := fitter.delays(observations); err != nil {
			return nil, nil, err
		}
	}

	hash := HashObservations(observations, fitter.degree())

	existing, err := m.storage.ListCurveSets(storage.ListCurveSetsFilter{Hash: hash})
	if err != nil {
		return nil, nil, fmt.Errorf("listing curve sets: %w", err)
	}
	if len(existing) > 0 {
		set := existing[0]
		curves, err := m.readCurves(set.ID)
		if err != nil {
			return nil, nil, err
		}
		m.logger().Info(
			"reusing curve set",
			slog.String("id", set.ID),
			slog.String("source", set.Source),
			slog.Int("curves", len(curves)),
		)
		return set, curves, nil
	}

	curves, err := fitter.Fit(observations)
	if err != nil {
		return nil, nil, err
	}

	set := &storage.CurveSet{
		ID:           uuid.NewString(),
		Source:       source,
		Hash:         hash,
		CreatedAt:    when.UTC(),
		Degree:       fitter.degree(),
		Observations: len(observations),
		Curves:       len(curves),
	}

	stored := make([]*storage.Curve, 0, len(curves))
	for _, key := range curves.Keys() {
		stored = append(stored, toStorage(key, curves[key]))
	}

	err = m.storage.WriteCurveSet(set, stored)
	if err != nil {
		return nil, nil, fmt.Errorf("writing curve set: %w", err)
	}

	m.logger().Info(
		"stored curve set",
		slog.String("id", set.ID),
		slog.String("source", source),
		slog.Int("curves", len(curves)),
	)

	return set, curves, nil
}

// Loads a stored curve set. An empty ID selects the most recently
// created set.
func (m *Manager) Curves(id string) (*storage.CurveSet, Curves, error) {
	sets, err := m.storage.ListCurveSets(storage.ListCurveSetsFilter{ID: id})
	if err != nil {
		return nil, nil, fmt.Errorf("listing curve sets: %w", err)
	}
	if len(sets) == 0 {
		if id == "" {
			return nil, nil, ErrNoCurveSet
		}
		return nil, nil, fmt.Errorf("curve set '%s': %w", id, ErrNoCurveSet)
	}

	curves, err := m.readCurves(sets[0].ID)
	if err != nil {
		return nil, nil, err
	}

	return sets[0], curves, nil
}

// Lists stored curve sets, most recent first. An empty source lists
// all sets.
func (m *Manager) List(source string) ([]*storage.CurveSet, error) {
	sets, err := m.storage.ListCurveSets(storage.ListCurveSetsFilter{Source: source})
	if err != nil {
		return nil, fmt.Errorf("listing curve sets: %w", err)
	}
	return sets, nil
}

func (m *Manager) Delete(id string) error {
	err := m.storage.DeleteCurveSet(id)
	if err != nil {
		return fmt.Errorf("deleting curve set: %w", err)
	}
	return nil
}

func (m *Manager) readCurves(id string) (Curves, error) {
	stored, err := m.storage.ReadCurves(id)
	if err != nil {
		return nil, fmt.Errorf("reading curves: %w", err)
	}

	curves := make(Curves, len(stored))
	for _, c := range stored {
		key, curve := fromStorage(c)
		curves[key] = curve
	}
	return curves, nil
}

func (m *Manager) fitter() *Fitter {
	if m.Fitter == nil {
		return NewFitter()
	}
	return m.Fitter
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// Content hash of a batch of observations, as fitted with the given
// degree. Row order matters, as it decides each trip's reference
// timepoint.
func HashObservations(observations []model.Observation, degree int) string {
	h := sha256.New()
	h.Write([]byte("degree=" + strconv.Itoa(degree) + "\n"))
	for _, o := range observations {
		timepoint := "0"
		if o.Timepoint {
			timepoint = "1"
		}
		for _, field := range []string{
			o.TripID,
			o.Date,
			o.StopID,
			o.RouteID,
			o.ServiceID,
			o.ShapeID,
			strconv.FormatInt(int64(o.Arrival/time.Second), 10),
			timepoint,
		} {
			h.Write([]byte(field))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toStorage(key model.CurveKey, c *DelayCurve) *storage.Curve {
	return &storage.Curve{
		RouteID:      key.RouteID,
		ServiceID:    key.ServiceID,
		ShapeID:      key.ShapeID,
		StopID:       key.StopID,
		Degree:       c.Degree,
		Coefficients: append([]float64(nil), c.Coefficients...),
		Shift:        c.Shift,
		Scale:        c.Scale,
		Samples:      c.Samples,
		Rank:         c.Rank,
		MinX:         c.MinX,
		MaxX:         c.MaxX,
		RMSE:         c.RMSE,
	}
}

func fromStorage(c *storage.Curve) (model.CurveKey, *DelayCurve) {
	key := model.CurveKey{
		RouteID:   c.RouteID,
		ServiceID: c.ServiceID,
		ShapeID:   c.ShapeID,
		StopID:    c.StopID,
	}
	return key, &DelayCurve{
		Degree:       c.Degree,
		Coefficients: append([]float64(nil), c.Coefficients...),
		Shift:        c.Shift,
		Scale:        c.Scale,
		Samples:      c.Samples,
		Rank:         c.Rank,
		MinX:         c.MinX,
		MaxX:         c.MaxX,
		RMSE:         c.RMSE,
	}
}
