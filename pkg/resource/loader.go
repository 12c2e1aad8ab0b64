package resource

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/Delphi/pkg/markup"
	"github.com/wehubfusion/Delphi/pkg/query"
	"github.com/wehubfusion/Delphi/pkg/taxonomy"
)

// FileKind selects which annotated files of an intent directory to read.
type FileKind string

const (
	// TrainFiles matches train*.txt, the labeled examples models fit on.
	TrainFiles FileKind = "train"
	// TestFiles matches test*.txt, the held-out examples used by Evaluate.
	TestFiles FileKind = "test"
)

// ErrNoTrainingData indicates an intent directory with no matching files.
var ErrNoTrainingData = errors.New("no training data")

// LabeledQuery is one parsed training or test example.
type LabeledQuery struct {
	Domain   string
	Intent   string
	Query    *query.Query
	Entities []*query.QueryEntity
}

// cachedExample is the query cache payload for one annotated line.
type cachedExample struct {
	Raw      string               `json:"raw"`
	Entities []*query.QueryEntity `json:"entities,omitempty"`
}

// Loader reads application resources. It is safe for concurrent use once
// constructed; the sqlite cache serializes its own access.
type Loader struct {
	paths   Paths
	factory *query.Factory
	logger  *zap.Logger

	cacheOnce sync.Once
	cache     *QueryCache
}

// NewLoader builds a loader rooted at the application directory. The query
// cache is opened lazily on first use so read-only operations never create
// the generated directory.
func NewLoader(root string, factory *query.Factory, logger *zap.Logger) (*Loader, error) {
	if root == "" {
		return nil, errors.New("application root is required")
	}
	if factory == nil {
		return nil, errors.New("query factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("application root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("application root %s is not a directory", root)
	}
	return &Loader{paths: Paths{Root: root}, factory: factory, logger: logger}, nil
}

// Paths exposes the loader's path layout.
func (l *Loader) Paths() Paths { return l.paths }

// Close releases the query cache if it was opened.
func (l *Loader) Close() error {
	if l.cache != nil {
		return l.cache.Close()
	}
	return nil
}

// Tree scans the domains directory and returns the application's domain and
// intent structure. Entity types are not filled in here; they surface from
// annotations once training data is loaded. An application with no domains
// directory yields an empty tree, which is normal for hosts that only ever
// load models from an artifact store.
func (l *Loader) Tree() (*taxonomy.Tree, error) {
	tree := taxonomy.New()
	domains, err := listDirs(l.paths.DomainsDir())
	if os.IsNotExist(err) {
		return tree, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning domains: %w", err)
	}
	for _, domain := range domains {
		intents, err := listDirs(l.paths.DomainDir(domain))
		if err != nil {
			return nil, fmt.Errorf("scanning intents of %s: %w", domain, err)
		}
		for _, intent := range intents {
			tree.AddIntent(domain, intent)
		}
	}
	return tree, nil
}

// EntityTypes lists the entity types that have a folder under entities/.
func (l *Loader) EntityTypes() ([]string, error) {
	types, err := listDirs(l.paths.EntitiesDir())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("scanning entities: %w", err)
	}
	return types, nil
}

// Mapping loads the mapping file for an entity type.
func (l *Loader) Mapping(entityType string) (*Mapping, error) {
	return LoadMapping(l.paths.MappingFile(entityType))
}

// Gazetteer loads the gazetteer for an entity type.
func (l *Loader) Gazetteer(entityType string) ([]string, error) {
	return LoadGazetteer(l.paths.GazetteerFile(entityType))
}

// LabeledQueries parses every annotated line of the intent's files of the
// given kind. Parsed lines are served from the sqlite cache when present.
func (l *Loader) LabeledQueries(domain, intent string, kind FileKind) ([]*LabeledQuery, error) {
	dir := l.paths.IntentDir(domain, intent)
	files, err := filepath.Glob(filepath.Join(dir, string(kind)+"*.txt"))
	if err != nil {
		return nil, fmt.Errorf("globbing %s files: %w", kind, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s.%s has no %s*.txt", ErrNoTrainingData, domain, intent, kind)
	}
	sort.Strings(files)

	var examples []*LabeledQuery
	for _, file := range files {
		fromFile, err := l.readFile(domain, intent, file)
		if err != nil {
			return nil, err
		}
		examples = append(examples, fromFile...)
	}
	l.logger.Debug("labeled queries loaded",
		zap.String("domain", domain),
		zap.String("intent", intent),
		zap.String("kind", string(kind)),
		zap.Int("count", len(examples)))
	return examples, nil
}

func (l *Loader) readFile(domain, intent, path string) ([]*LabeledQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var examples []*LabeledQuery
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		example, err := l.parseLine(domain, intent, line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		examples = append(examples, example)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return examples, nil
}

// parseLine parses one annotated line, consulting the query cache first.
func (l *Loader) parseLine(domain, intent, line string) (*LabeledQuery, error) {
	key := cacheKey(domain, intent, line)
	if cache := l.openCache(); cache != nil {
		if payload, ok, err := cache.Get(key); err == nil && ok {
			var cached cachedExample
			if err := json.Unmarshal(payload, &cached); err == nil {
				return &LabeledQuery{
					Domain:   domain,
					Intent:   intent,
					Query:    l.factory.CreateQuery(cached.Raw),
					Entities: cached.Entities,
				}, nil
			}
		}
	}

	q, entities, err := markup.Parse(l.factory, line)
	if err != nil {
		return nil, err
	}
	if cache := l.openCache(); cache != nil {
		payload, err := json.Marshal(cachedExample{Raw: q.Text(), Entities: entities})
		if err == nil {
			if err := cache.Put(key, payload); err != nil {
				l.logger.Warn("query cache write failed", zap.Error(err))
			}
		}
	}
	return &LabeledQuery{Domain: domain, Intent: intent, Query: q, Entities: entities}, nil
}

func (l *Loader) openCache() *QueryCache {
	l.cacheOnce.Do(func() {
		cache, err := OpenQueryCache(l.paths.QueryCacheFile(), l.logger)
		if err != nil {
			l.logger.Warn("query cache unavailable", zap.Error(err))
			return
		}
		l.cache = cache
	})
	return l.cache
}

func cacheKey(domain, intent, line string) string {
	sum := sha256.Sum256([]byte(domain + "\x00" + intent + "\x00" + line))
	return hex.EncodeToString(sum[:])
}

// listDirs returns the sorted names of subdirectories, skipping hidden ones.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
