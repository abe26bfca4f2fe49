// Command harvest is the reference one-shot CLI over the reply-thread
// harvester core: given one or more account handles and/or root post ids,
// it runs each through internal/appwiring's orchestrator and writes the
// harvested roots/replies as JSON lines. Multiple targets are drained
// concurrently under a bounded worker limit, generalized from the
// teacher's ResolveMany batch-resolution pattern.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/x-reply-harvester/harvester/internal/appwiring"
	"github.com/x-reply-harvester/harvester/internal/harvestmodel"
	"github.com/x-reply-harvester/harvester/internal/orchestrator"
)

const (
	commandUse              = "harvest"
	commandShortDescription = "Harvest reply threads for one or more accounts or posts"
	envPrefix               = "HARVEST"

	flagHandlesName        = "handle"
	flagHandlesDescription = "Account handle to harvest (repeatable)"
	flagRootsName          = "root"
	flagRootsDescription   = "Root post id to harvest (repeatable)"

	flagMaxPostsName        = "max-posts"
	flagMaxPostsDescription = "Maximum root posts to harvest per account"
	defaultMaxPosts         = 20

	flagMethodName        = "method"
	flagMethodDescription = "Harvest method: browser, api, or auto"
	defaultMethod         = "auto"

	flagSortName        = "sort"
	flagSortDescription = "Reply sort order: recent or top"
	defaultSort          = "recent"

	flagExpandFoldedName        = "expand-folded"
	flagExpandFoldedDescription = "Click through folded/truncated replies while enumerating"

	flagConcurrencyName        = "concurrency"
	flagConcurrencyDescription = "Maximum number of targets harvested at once"
	defaultConcurrency         = 3

	flagDBPathName        = "db"
	flagDBPathDescription = "Path to the SQLite config store; empty uses an in-memory store"

	flagPacingPresetName        = "pacing-preset"
	flagPacingPresetDescription = "Initial pacing preset: ultraSlow, slow, normal, fast"
	defaultPacingPreset         = "normal"

	flagBudgetProfileName        = "budget-profile"
	flagBudgetProfileDescription = "Enumeration effort profile: dev or prod"
	defaultBudgetProfile         = "dev"

	flagApifyBaseURLName        = "apify-base-url"
	flagApifyBaseURLDescription = "Base URL for the fallback actor-run API"
	flagApifyActorName          = "apify-actor"
	flagApifyActorDescription   = "Actor id for the fallback actor-run API"

	flagChromeBinaryName        = "chrome-binary"
	flagChromeBinaryDescription = "Explicit Chrome/Chromium binary path"

	errMessageNoTargets  = "at least one --handle or --root must be given"
	errMessageBuildGraph = "build dependency graph"
)

func main() {
	cobra.CheckErr(newHarvestCommand().Execute())
}

func newHarvestCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE:  runHarvestCommand,
	}

	command.Flags().StringSlice(flagHandlesName, nil, flagHandlesDescription)
	command.Flags().StringSlice(flagRootsName, nil, flagRootsDescription)
	command.Flags().Int(flagMaxPostsName, defaultMaxPosts, flagMaxPostsDescription)
	command.Flags().String(flagMethodName, defaultMethod, flagMethodDescription)
	command.Flags().String(flagSortName, defaultSort, flagSortDescription)
	command.Flags().Bool(flagExpandFoldedName, false, flagExpandFoldedDescription)
	command.Flags().Int(flagConcurrencyName, defaultConcurrency, flagConcurrencyDescription)
	command.Flags().String(flagDBPathName, "", flagDBPathDescription)
	command.Flags().String(flagPacingPresetName, defaultPacingPreset, flagPacingPresetDescription)
	command.Flags().String(flagBudgetProfileName, defaultBudgetProfile, flagBudgetProfileDescription)
	command.Flags().String(flagApifyBaseURLName, "", flagApifyBaseURLDescription)
	command.Flags().String(flagApifyActorName, "", flagApifyActorDescription)
	command.Flags().String(flagChromeBinaryName, "", flagChromeBinaryDescription)

	for _, flagName := range []string{
		flagHandlesName, flagRootsName, flagMaxPostsName, flagMethodName, flagSortName,
		flagExpandFoldedName, flagConcurrencyName, flagDBPathName, flagPacingPresetName,
		flagBudgetProfileName, flagApifyBaseURLName, flagApifyActorName, flagChromeBinaryName,
	} {
		bindFlagToViper(command, flagName)
	}

	cobra.OnInitialize(configureEnvironment)

	return command
}

func bindFlagToViper(command *cobra.Command, flagName string) {
	cobra.CheckErr(viper.BindPFlag(flagName, command.Flags().Lookup(flagName)))
}

func configureEnvironment() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

type harvestTarget struct {
	isAccount bool
	handle    string
	rootID    string
}

type harvestRecord struct {
	Target string              `json:"target"`
	Kind   string              `json:"kind"`
	Root   *harvestmodel.RootPost `json:"root,omitempty"`
	Reply  *harvestmodel.Reply    `json:"reply,omitempty"`
}

func runHarvestCommand(*cobra.Command, []string) error {
	handles := viper.GetStringSlice(flagHandlesName)
	roots := viper.GetStringSlice(flagRootsName)
	if len(handles) == 0 && len(roots) == 0 {
		return errors.New(errMessageNoTargets)
	}

	graph, err := appwiring.Build(appwiring.Options{
		DBPath:           viper.GetString(flagDBPathName),
		PacingPreset:     viper.GetString(flagPacingPresetName),
		ProdBudgets:      viper.GetString(flagBudgetProfileName) == "prod",
		ChromeBinaryPath: viper.GetString(flagChromeBinaryName),
		ApifyBaseURL:     viper.GetString(flagApifyBaseURLName),
		ApifyActor:       viper.GetString(flagApifyActorName),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBuildGraph, err)
	}
	defer graph.CloseStore()

	options := harvestmodel.ReplyScrapeOptions{
		SortMode:            normalizeSortMode(viper.GetString(flagSortName)),
		ExpandFoldedReplies: viper.GetBool(flagExpandFoldedName),
	}
	method := orchestrator.NormalizeMethod(viper.GetString(flagMethodName))
	maxPosts := viper.GetInt(flagMaxPostsName)

	targets := make([]harvestTarget, 0, len(handles)+len(roots))
	for _, handle := range handles {
		targets = append(targets, harvestTarget{isAccount: true, handle: handle})
	}
	for _, rootID := range roots {
		targets = append(targets, harvestTarget{rootID: rootID})
	}

	encoder := json.NewEncoder(os.Stdout)
	var writeMutex sync.Mutex
	writeRecord := func(record harvestRecord) {
		writeMutex.Lock()
		defer writeMutex.Unlock()
		_ = encoder.Encode(record)
	}

	concurrency := viper.GetInt(flagConcurrencyName)
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	group, ctx := errgroup.WithContext(context.Background())
	group.SetLimit(concurrency)

	for _, target := range targets {
		target := target
		group.Go(func() error {
			runTarget(ctx, graph.Service, target, maxPosts, options, method, writeRecord)
			return nil
		})
	}

	return group.Wait()
}

func runTarget(ctx context.Context, service *orchestrator.Service, target harvestTarget, maxPosts int, options harvestmodel.ReplyScrapeOptions, method orchestrator.Method, writeRecord func(harvestRecord)) {
	if target.isAccount {
		service.ScrapeAccount(ctx, target.handle, maxPosts, options, method,
			func(root harvestmodel.RootPost) {
				rootCopy := root
				writeRecord(harvestRecord{Target: target.handle, Kind: "root", Root: &rootCopy})
			},
			func(reply harvestmodel.Reply) {
				replyCopy := reply
				writeRecord(harvestRecord{Target: target.handle, Kind: "reply", Reply: &replyCopy})
			},
		)
		return
	}

	service.ScrapeRootPost(ctx, target.rootID, options, method,
		func(root harvestmodel.RootPost) {
			rootCopy := root
			writeRecord(harvestRecord{Target: target.rootID, Kind: "root", Root: &rootCopy})
		},
		func(reply harvestmodel.Reply) {
			replyCopy := reply
			writeRecord(harvestRecord{Target: target.rootID, Kind: "reply", Reply: &replyCopy})
		},
	)
}

func normalizeSortMode(raw string) harvestmodel.SortMode {
	if raw == string(harvestmodel.SortTop) {
		return harvestmodel.SortTop
	}
	return harvestmodel.SortRecent
}
