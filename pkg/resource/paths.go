// Package resource reads application resources from disk: the domain and
// intent folder hierarchy, annotated training files, entity mappings and
// gazetteers, and a sqlite cache that makes repeated training runs skip
// markup parsing.
package resource

import "path/filepath"

// Layout constants of an application directory.
const (
	domainsDirName   = "domains"
	entitiesDirName  = "entities"
	generatedDirName = ".generated"
	modelsDirName    = "models"
	cachedModelsName = "cache"

	mappingFileName   = "mapping.json"
	gazetteerFileName = "gazetteer.txt"
	queryCacheName    = "query_cache.db"
	manifestFileName  = "manifest.json"
)

// Paths resolves the well-known locations inside one application directory.
//
//	app/
//	  domains/<domain>/<intent>/train*.txt
//	  entities/<type>/mapping.json
//	  entities/<type>/gazetteer.txt
//	  .generated/query_cache.db
//	  .generated/models/...
type Paths struct {
	Root string
}

func (p Paths) DomainsDir() string  { return filepath.Join(p.Root, domainsDirName) }
func (p Paths) EntitiesDir() string { return filepath.Join(p.Root, entitiesDirName) }

func (p Paths) DomainDir(domain string) string {
	return filepath.Join(p.DomainsDir(), domain)
}

func (p Paths) IntentDir(domain, intent string) string {
	return filepath.Join(p.DomainsDir(), domain, intent)
}

func (p Paths) EntityDir(entityType string) string {
	return filepath.Join(p.EntitiesDir(), entityType)
}

func (p Paths) MappingFile(entityType string) string {
	return filepath.Join(p.EntityDir(entityType), mappingFileName)
}

func (p Paths) GazetteerFile(entityType string) string {
	return filepath.Join(p.EntityDir(entityType), gazetteerFileName)
}

func (p Paths) GeneratedDir() string {
	return filepath.Join(p.Root, generatedDirName)
}

func (p Paths) QueryCacheFile() string {
	return filepath.Join(p.GeneratedDir(), queryCacheName)
}

// ModelKey returns the storage key for one model artifact. A non-empty token
// places the artifact under that build's cache directory, which is how
// incremental builds keep every timestamped generation addressable.
func ModelKey(token, name string) string {
	if token == "" {
		return filepath.ToSlash(filepath.Join(modelsDirName, name))
	}
	return filepath.ToSlash(filepath.Join(modelsDirName, cachedModelsName, token, name))
}

// ManifestKey is the storage key of the build manifest, which records the
// most recent build token.
func ManifestKey() string {
	return filepath.ToSlash(filepath.Join(modelsDirName, manifestFileName))
}
