package nlp

import (
	"time"

	"golang.org/x/text/language"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/dispatch"
	"github.com/wehubfusion/Delphi/pkg/query"
	"github.com/wehubfusion/Delphi/pkg/storage"
)

// ParserRule declares the structural relations of one intent. Each key is a
// head entity type and its value lists the dependent entity types that attach
// beneath it after post-processing.
type ParserRule map[string][]string

// Config configures an Engine. AppRoot is required; every other field has a
// working default.
type Config struct {
	// AppRoot is the application resource directory.
	AppRoot string

	// Language is the default language of incoming queries.
	Language language.Tag

	// Store persists model artifacts. Defaults to a local store under the
	// application's generated directory.
	Store storage.ArtifactStore

	// Models supplies model constructors by type name. Defaults to the
	// baseline registry.
	Models *classifier.Registry

	// Model type names used when fitting each tier, defaulting to the
	// baseline models. Loading always honors the type recorded in the
	// artifact instead.
	TextModel       string
	RecognizerModel string
	RoleModel       string
	ResolverModel   string

	// Workers sizes the dispatch pool. Zero reads the DELPHI_WORKERS
	// environment variable; a negative value forces serial execution.
	Workers int

	// Wait bounds how long a dispatched batch may run before the engine
	// abandons it and reruns it serially.
	Wait time.Duration

	// Reporter receives dispatcher recovery notices.
	Reporter dispatch.Reporter

	// Preprocessor and SystemRecognizer extend query construction.
	Preprocessor     query.Preprocessor
	SystemRecognizer query.SystemRecognizer

	// Parsers holds structural parsing rules keyed by "domain.intent".
	// Intents without a rule skip the parsing stage.
	Parsers map[string]ParserRule
}
