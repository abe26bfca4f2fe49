// Package appwiring builds the concrete dependency graph that both
// reference commands (cmd/harvestd, cmd/harvest) need: a configstore
// binding, a credential rotator seeded from it, a pacing policy, a browser
// pool, an optional fallback API client, and the orchestrator that ties
// them together. Neither reference command owns this wiring logic itself
// so the two stay thin and in sync with each other.
package appwiring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/x-reply-harvester/harvester/internal/apifyclient"
	"github.com/x-reply-harvester/harvester/internal/browserpool"
	"github.com/x-reply-harvester/harvester/internal/configstore"
	"github.com/x-reply-harvester/harvester/internal/credentials"
	"github.com/x-reply-harvester/harvester/internal/enumerator"
	"github.com/x-reply-harvester/harvester/internal/harvest"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/orchestrator"
	"github.com/x-reply-harvester/harvester/internal/pacing"
	"github.com/x-reply-harvester/harvester/internal/progress"
)

// Options controls how the dependency graph is assembled. Zero values pick
// the same defaults browserpool/pacing/enumerator already document.
type Options struct {
	DBPath           string
	PacingPreset     string
	ProdBudgets      bool
	ChromeBinaryPath string
	ApifyBaseURL     string
	ApifyActor       string
}

// Graph bundles the constructed orchestrator with the pieces a caller
// still needs to manage (the progress registry to expose, and the store's
// close function).
type Graph struct {
	Service    *orchestrator.Service
	Progress   *progress.Registry
	Rotator    *credentials.Rotator
	Pool       *browserpool.Pool
	Store      configstore.Store
	CloseStore func()
}

// Build opens the config store named by options.DBPath (or an in-memory
// store if empty), seeds a credential rotator and pacing policy from it,
// and wires a harvest.Session plus an optional apifyclient.Client into a
// ready-to-use orchestrator.Service.
func Build(options Options) (Graph, error) {
	store, closeStore, err := openConfigStore(options.DBPath)
	if err != nil {
		return Graph{}, fmt.Errorf("open config store: %w", err)
	}

	rotator, err := loadCredentialRotator(store)
	if err != nil {
		closeStore()
		return Graph{}, fmt.Errorf("load credential bundles: %w", err)
	}

	pacingPolicy := pacing.New()
	preset := firstNonEmpty(mustGet(store, configstore.KeyScrapePacingPreset), options.PacingPreset)
	pacingPolicy.SetPreset(preset)

	browserConfig := browserpool.DefaultConfig()
	browserConfig.ProxyURL = mustGet(store, configstore.KeyProxyURL)
	browserConfig.ChromeBinaryPath = options.ChromeBinaryPath
	pool := browserpool.New(browserConfig)
	if notifier, ok := store.(configstore.ChangeNotifier); ok {
		notifier.OnChange(configstore.KeyProxyURL, pool.SetProxyURL)
	}

	budgets := enumerator.DevBudgets()
	if options.ProdBudgets {
		budgets = enumerator.ProdBudgets()
	}
	session := &harvest.Session{Pool: pool, Pacer: pacingPolicy, Budgets: budgets}

	progressRegistry := progress.NewRegistry()
	orchestratorConfig := orchestrator.Config{
		Harvester:    session,
		Credentials:  rotator,
		Progress:     progressRegistry,
		APITokenFunc: func() string { return mustGet(store, configstore.KeyApifyToken) },
	}

	apifyToken := mustGet(store, configstore.KeyApifyToken)
	if apifyToken != "" && options.ApifyActor != "" {
		orchestratorConfig.APIClient = apifyclient.New(apifyclient.Config{
			BaseURL: options.ApifyBaseURL,
			Actor:   options.ApifyActor,
			Token:   apifyToken,
		})
	}

	return Graph{
		Service:    orchestrator.New(orchestratorConfig),
		Progress:   progressRegistry,
		Rotator:    rotator,
		Pool:       pool,
		Store:      store,
		CloseStore: closeStore,
	}, nil
}

func openConfigStore(dbPath string) (configstore.Store, func(), error) {
	if strings.TrimSpace(dbPath) == "" {
		return configstore.NewMemoryStore(), func() {}, nil
	}
	store, err := configstore.OpenSQLiteStore(dbPath)
	if err != nil {
		return nil, func() {}, err
	}
	return store, func() { _ = store.Close() }, nil
}

// cookieRecord mirrors one cookie entry in the config store's JSON columns.
type cookieRecord struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// loadCredentialRotator seeds a Rotator from whichever of the two cookie
// keys the store has: KeyXCookiesList (one JSON array of bundles, for
// multi-account rotation) takes precedence over KeyXCookies (a single
// bundle's cookie array).
func loadCredentialRotator(store configstore.Store) (*credentials.Rotator, error) {
	rotator := credentials.New()

	if raw := mustGet(store, configstore.KeyXCookiesList); raw != "" {
		var bundleRecords [][]cookieRecord
		if err := json.Unmarshal([]byte(raw), &bundleRecords); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configstore.KeyXCookiesList, err)
		}
		rotator.SetAll(toBundles(bundleRecords))
		return rotator, nil
	}

	if raw := mustGet(store, configstore.KeyXCookies); raw != "" {
		var cookies []cookieRecord
		if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configstore.KeyXCookies, err)
		}
		rotator.SetAll(toBundles([][]cookieRecord{cookies}))
	}

	return rotator, nil
}

func toBundles(bundleRecords [][]cookieRecord) []harvestmodel.CredentialBundle {
	bundles := make([]harvestmodel.CredentialBundle, 0, len(bundleRecords))
	for _, cookies := range bundleRecords {
		bundle := harvestmodel.CredentialBundle{Cookies: make([]harvestmodel.CookieCredential, 0, len(cookies))}
		for _, cookie := range cookies {
			bundle.Cookies = append(bundle.Cookies, harvestmodel.CookieCredential{
				Name: cookie.Name, Value: cookie.Value, Domain: cookie.Domain, Path: cookie.Path,
			})
		}
		bundles = append(bundles, bundle)
	}
	return bundles
}

func mustGet(store configstore.Store, key string) string {
	value, err := store.Get(key)
	if err != nil {
		return ""
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
