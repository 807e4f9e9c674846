// Package store persists the result of an analysis run in badger, so the
// consumers of a location can be looked up without reloading the workbook.
//
// Keys:
//
//	out/<location>   JSON list of egress locations consuming the record,
//	                 written for every record so a missing key means no formula
//	tree/<location>  JSON call tree of one egress record
//	meta/run         JSON summary of the run that wrote the above
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vogtb/go-spreadflow/packages/logging"
	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
)

const (
	outPrefix  = "out/"
	treePrefix = "tree/"
	metaPrefix = "meta/"
	runKey     = metaPrefix + "run"
)

// ErrNotFound is returned when a location has nothing stored.
var ErrNotFound = errors.New("not found in store")

var (
	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadflow_store_writes_total",
		Help: "Keys written to the analysis store by kind",
	}, []string{"kind"})

	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadflow_store_errors_total",
		Help: "Failed analysis store operations",
	})
)

// Config controls how the database is opened
type Config struct {
	// Path is the database directory. ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory, for tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's own log output. nil silences it.
	Logger *slog.Logger
}

// DefaultConfig is a durable on-disk database at path
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig is a throwaway database
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger bridges badger.Logger to slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store reads and writes analysis results
type Store struct {
	db *badger.DB
}

// Open opens or creates the database described by cfg
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// TreeRecord is the stored form of one call tree
type TreeRecord struct {
	Root       string   `json:"root"`
	Records    []string `json:"records"`
	Unresolved []string `json:"unresolved,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
}

// RunRecord identifies the analysis currently held by the store
type RunRecord struct {
	ID         string    `json:"id"`
	SavedAt    time.Time `json:"saved_at"`
	Formulas   int       `json:"formulas"`
	Egress     int       `json:"egress"`
	Unresolved int       `json:"unresolved"`
}

// NewTreeRecord flattens a call tree into its stored form
func NewTreeRecord(tree *spreadsheet.CallTree) TreeRecord {
	rec := TreeRecord{
		Root:      tree.Root.Location().String(),
		Records:   make([]string, 0, len(tree.Records)),
		Truncated: tree.Truncated,
	}
	for _, loc := range tree.Locations() {
		rec.Records = append(rec.Records, loc.String())
	}
	for _, u := range tree.Unresolved {
		rec.Unresolved = append(rec.Unresolved, u.Reference)
	}
	return rec
}

// SaveReport replaces whatever a previous run stored with the links of p
// and the trees of report.
func (s *Store) SaveReport(ctx context.Context, p *spreadsheet.Program, report *spreadsheet.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.FromContext(ctx)

	if err := s.db.DropPrefix([]byte(outPrefix), []byte(treePrefix), []byte(metaPrefix)); err != nil {
		storeErrors.Inc()
		return fmt.Errorf("clear previous run: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	outputs := 0
	for f := range p.Formulas() {
		consumers := f.Outputs()
		names := make([]string, len(consumers))
		for i, loc := range consumers {
			names[i] = loc.String()
		}
		if err := setJSON(wb, outPrefix+f.Location().String(), names); err != nil {
			storeErrors.Inc()
			return err
		}
		outputs++
	}

	for _, tree := range report.Trees {
		rec := NewTreeRecord(tree)
		if err := setJSON(wb, treePrefix+rec.Root, rec); err != nil {
			storeErrors.Inc()
			return err
		}
	}

	run := RunRecord{
		ID:         uuid.NewString(),
		SavedAt:    time.Now().UTC(),
		Formulas:   p.Len(),
		Egress:     len(report.Trees),
		Unresolved: len(report.Unresolved()),
	}
	if err := setJSON(wb, runKey, run); err != nil {
		storeErrors.Inc()
		return err
	}

	if err := wb.Flush(); err != nil {
		storeErrors.Inc()
		return fmt.Errorf("flush analysis: %w", err)
	}

	storeWrites.WithLabelValues("out").Add(float64(outputs))
	storeWrites.WithLabelValues("tree").Add(float64(len(report.Trees)))
	logger.Debug("analysis stored", "run", run.ID, "outputs", outputs, "trees", len(report.Trees))
	return nil
}

func setJSON(wb *badger.WriteBatch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := wb.Set([]byte(key), data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Consumers returns the egress locations stored for the record at loc. a
// single cell inside a range record resolves to that record. ErrNotFound
// means no record is stored there; a record nobody reads gives an empty list.
func (s *Store) Consumers(ctx context.Context, loc spreadsheet.Location) ([]spreadsheet.Location, error) {
	var names []string
	err := s.getJSON(ctx, outPrefix+loc.String(), &names)
	if errors.Is(err, ErrNotFound) && loc.Area.IsCell() {
		owner, found, ownerErr := s.owningBlock(ctx, loc)
		if ownerErr != nil {
			return nil, ownerErr
		}
		if found {
			err = s.getJSON(ctx, outPrefix+owner.String(), &names)
		}
	}
	if err != nil {
		return nil, err
	}

	locs := make([]spreadsheet.Location, 0, len(names))
	for _, name := range names {
		l, err := spreadsheet.ParseLocation(name, "")
		if err != nil {
			return nil, fmt.Errorf("stored consumer %q of %s: %w", name, loc, err)
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// owningBlock finds the stored range record on loc's sheet that covers
// the cell at loc
func (s *Store) owningBlock(ctx context.Context, loc spreadsheet.Location) (spreadsheet.Location, bool, error) {
	if err := ctx.Err(); err != nil {
		return spreadsheet.Location{}, false, err
	}

	var owner spreadsheet.Location
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(outPrefix + spreadsheet.QuoteSheet(loc.Sheet) + "!")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			block, err := spreadsheet.ParseLocation(key[len(outPrefix):], "")
			if err != nil {
				return fmt.Errorf("stored key %q: %w", key, err)
			}
			if !block.Area.IsCell() && block.Area.Contains(loc.Area.TopLeft) {
				owner, found = block, true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		storeErrors.Inc()
		return spreadsheet.Location{}, false, err
	}
	return owner, found, nil
}

// CallTree returns the stored tree of an egress location
func (s *Store) CallTree(ctx context.Context, loc spreadsheet.Location) (*TreeRecord, error) {
	var rec TreeRecord
	if err := s.getJSON(ctx, treePrefix+loc.String(), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LastRun describes the run that wrote the stored analysis
func (s *Store) LastRun(ctx context.Context) (*RunRecord, error) {
	var run RunRecord
	if err := s.getJSON(ctx, runKey, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Egress lists the stored egress roots in key order
func (s *Store) Egress(ctx context.Context) ([]spreadsheet.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var locs []spreadsheet.Location
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(treePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			loc, err := spreadsheet.ParseLocation(key[len(treePrefix):], "")
			if err != nil {
				return fmt.Errorf("stored key %q: %w", key, err)
			}
			locs = append(locs, loc)
		}
		return nil
	})
	if err != nil {
		storeErrors.Inc()
		return nil, err
	}
	return locs, nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		storeErrors.Inc()
	}
	return err
}
