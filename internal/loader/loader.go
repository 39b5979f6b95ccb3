// Package loader turns package sources into loaded automata: it parses a
// package, orders its automata, filters the blacklist and hands each
// definition to the registry. It also drives loading of every configured
// package URL.
package loader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"automata/internal/clock"
	"automata/internal/events"
	"automata/internal/manifest"
	"automata/internal/sequencer"
	"automata/pkg/automaton"
)

const eventSource = "loader"

// Registry loads one automaton definition.
type Registry interface {
	Load(ctx context.Context, def automaton.Definition, sourceURL string) error
}

// Fetcher retrieves raw package source text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Settings supplies the configured package URLs and the blacklist.
type Settings interface {
	URLs(ctx context.Context) ([]string, error)
	Blacklist(ctx context.Context) ([]string, error)
}

// PackageLoadRecord describes one processed package.
type PackageLoadRecord struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	PackageName    string    `json:"package_name"`
	AutomataLoaded int       `json:"automata_loaded"`
	LoadedAt       time.Time `json:"loaded_at"`
}

// Config holds the loader collaborators.
type Config struct {
	Registry Registry
	Fetcher  Fetcher
	Settings Settings
	Events   events.Publisher
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Loader loads packages one at a time. Concurrent calls are serialized so
// dependency and conflict observations stay consistent across packages.
type Loader struct {
	registry Registry
	fetcher  Fetcher
	settings Settings
	events   events.Publisher
	clock    clock.Clock
	logger   *zap.Logger

	loadMu sync.Mutex

	historyMu sync.RWMutex
	history   []PackageLoadRecord
}

// New creates a loader.
func New(cfg Config) *Loader {
	l := &Loader{
		registry: cfg.Registry,
		fetcher:  cfg.Fetcher,
		settings: cfg.Settings,
		events:   cfg.Events,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if l.clock == nil {
		l.clock = clock.NewRealClock()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.Named("loader")
	return l
}

// LoadPackage parses source and loads its automata in dependency order,
// skipping blacklisted names. It returns how many automata were loaded.
//
// A parse failure loads nothing. A failing automaton does not stop the
// remaining ones.
func (l *Loader) LoadPackage(ctx context.Context, source, url string) (int, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	return l.loadPackage(ctx, source, url)
}

// LoadURL fetches the package at url and loads it.
func (l *Loader) LoadURL(ctx context.Context, url string) (int, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	return l.loadURL(ctx, url)
}

// LoadAll loads every configured package URL in order. Failures are
// isolated per URL and returned combined; the count covers every package
// that was processed.
func (l *Loader) LoadAll(ctx context.Context) (int, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	urls, err := l.settings.URLs(ctx)
	if err != nil {
		l.logger.Error("Failed to read package URLs", zap.Error(err))
		l.events.Publish(events.Failure(err, "failed to read package URLs", eventSource, events.SeverityError))
		return 0, fmt.Errorf("reading package urls: %w", err)
	}
	if len(urls) == 0 {
		l.logger.Warn("No package URLs configured")
		l.events.Publish(events.Failure(nil, "no package URLs configured", eventSource, events.SeverityWarning))
		return 0, nil
	}

	l.logger.Info("Loading packages", zap.Int("urls", len(urls)))

	var (
		total int
		errs  error
	)
	for _, url := range urls {
		n, err := l.loadURL(ctx, url)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		total += n
	}

	failed := len(multierr.Errors(errs))
	l.logger.Info("Package loading complete",
		zap.Int("automata_loaded", total),
		zap.Int("packages", len(urls)),
		zap.Int("packages_failed", failed))
	return total, errs
}

// History returns every processed package in load order.
func (l *Loader) History() []PackageLoadRecord {
	l.historyMu.RLock()
	defer l.historyMu.RUnlock()

	out := make([]PackageLoadRecord, len(l.history))
	copy(out, l.history)
	return out
}

func (l *Loader) loadURL(ctx context.Context, url string) (int, error) {
	source, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.logger.Error("Failed to fetch package", zap.String("url", url), zap.Error(err))
		l.events.Publish(events.Failure(err, "failed to fetch package "+url, eventSource, events.SeverityError))
		return 0, err
	}
	return l.loadPackage(ctx, source, url)
}

func (l *Loader) loadPackage(ctx context.Context, source, url string) (int, error) {
	logger := l.logger.With(zap.String("url", url))

	pkg, err := manifest.Parse(source)
	if err != nil {
		logger.Error("Failed to parse package", zap.Error(err))
		l.events.Publish(events.Failure(err, "failed to parse package "+url, eventSource, events.SeverityError))
		return 0, fmt.Errorf("parsing package %s: %w", url, err)
	}

	blacklist, err := l.settings.Blacklist(ctx)
	if err != nil {
		logger.Error("Failed to read blacklist", zap.Error(err))
		l.events.Publish(events.Failure(err, "failed to read blacklist", eventSource, events.SeverityError))
		return 0, fmt.Errorf("reading blacklist: %w", err)
	}
	skip := make(map[string]bool, len(blacklist))
	for _, name := range blacklist {
		skip[name] = true
	}

	logger.Info("Loading package",
		zap.String("package", pkg.Name),
		zap.Int("automata", len(pkg.Automata)))

	ordered := sequencer.Order(pkg.Automata, &orderObserver{loader: l, logger: logger})

	loaded := 0
	for _, def := range ordered {
		if skip[def.Name] {
			logger.Info("Skipping blacklisted automaton", zap.String("automaton", def.Name))
			continue
		}
		// The registry logs and emits the failure.
		if err := l.registry.Load(ctx, def, url); err != nil {
			continue
		}
		loaded++
	}

	l.historyMu.Lock()
	l.history = append(l.history, PackageLoadRecord{
		ID:             uuid.NewString(),
		URL:            url,
		PackageName:    pkg.Name,
		AutomataLoaded: loaded,
		LoadedAt:       l.clock.Now(),
	})
	l.historyMu.Unlock()

	logger.Info("Package loaded",
		zap.String("package", pkg.Name),
		zap.Int("automata_loaded", loaded),
		zap.Int("automata_declared", len(pkg.Automata)))
	return loaded, nil
}

// orderObserver turns sequencer diagnostics into warnings.
type orderObserver struct {
	loader *Loader
	logger *zap.Logger
}

func (o *orderObserver) MissingDependency(name, dependency string) {
	o.logger.Warn("Dependency not found in package",
		zap.String("automaton", name),
		zap.String("dependency", dependency))
	o.loader.events.Publish(events.Failure(nil,
		fmt.Sprintf("automaton %s depends on %s, which is not in the package", name, dependency),
		eventSource, events.SeverityWarning))
}

func (o *orderObserver) CycleDetected(path []string) {
	cycle := strings.Join(path, " -> ")
	o.logger.Warn("Dependency cycle", zap.String("cycle", cycle))
	o.loader.events.Publish(events.Failure(nil, "dependency cycle: "+cycle, eventSource, events.SeverityWarning))
}
