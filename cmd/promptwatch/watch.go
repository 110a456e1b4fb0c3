// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/promptwatch/internal/log"
	"github.com/teradata-labs/promptwatch/pkg/transport"
	"github.com/teradata-labs/promptwatch/pkg/watcher"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Watch a prompt and report every change",
	Long: `Fetches the current prompt snapshot, then keeps it synchronized by
polling (default) or over a persistent SSE stream (--push). Changes are
printed as they arrive, with a unified view of content edits.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 30*time.Second, "poll interval")
	watchCmd.Flags().Bool("push", false, "use a persistent SSE stream instead of polling")
	watchCmd.Flags().String("tag", "", "pin to a prompt tag")
	watchCmd.Flags().Int("version", 0, "pin to a prompt version")
	watchCmd.Flags().Bool("allow-short-interval", false, "accept intervals below the 5s floor (testing only)")

	_ = viper.BindPFlag("watch.interval", watchCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("watch.push", watchCmd.Flags().Lookup("push"))
	_ = viper.BindPFlag("watch.tag", watchCmd.Flags().Lookup("tag"))
	_ = viper.BindPFlag("watch.version", watchCmd.Flags().Lookup("version"))
	_ = viper.BindPFlag("watch.allow_short_interval", watchCmd.Flags().Lookup("allow-short-interval"))

	rootCmd.AddCommand(watchCmd)
}

type watchSettings struct {
	interval   time.Duration
	push       bool
	tag        string
	version    int
	allowShort bool
}

// loadWatchSettings resolves the watch options through viper so config-file
// and environment values apply when the flag is left at its default.
func loadWatchSettings() watchSettings {
	return watchSettings{
		interval:   viper.GetDuration("watch.interval"),
		push:       viper.GetBool("watch.push"),
		tag:        viper.GetString("watch.tag"),
		version:    viper.GetInt("watch.version"),
		allowShort: viper.GetBool("watch.allow_short_interval"),
	}
}

func runWatch(_ *cobra.Command, args []string) error {
	projectID := args[0]

	logger, err := log.New(viper.GetString("logging.level"), viper.GetString("logging.format"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fetcher, err := transport.NewHTTPFetcher(transport.HTTPConfig{
		BaseURL: viper.GetString("server.url"),
		APIKey:  viper.GetString("server.api_key"),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	settings := loadWatchSettings()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	initial, err := fetcher.FetchSnapshot(ctx, projectID, transport.FetchOptions{Version: settings.version, Tag: settings.tag})
	cancel()
	if err != nil {
		return fmt.Errorf("initial fetch failed: %w", err)
	}

	fmt.Printf("watching %s (version %d, model %s/%s)\n",
		initial.ID, initial.Version, initial.Model.Provider, initial.Model.Model)

	opts := watcher.Options{
		Fetcher:            fetcher,
		ProjectID:          projectID,
		Initial:            initial,
		Version:            settings.version,
		Tag:                settings.tag,
		Interval:           settings.interval,
		AllowShortInterval: settings.allowShort,
		Logger:             logger,
	}
	if settings.push {
		opts.Mode = watcher.ModePush
		opts.StreamURL = fetcher.StreamURL(projectID)
		opts.StreamHeaders = fetcher.StreamHeaders()
	}

	session, err := watcher.Start(opts)
	if err != nil {
		return err
	}
	defer session.Stop()

	dmp := diffmatchpatch.New()
	session.Changes().On(func(ev watcher.ChangeEvent) {
		fmt.Printf("\nprompt changed: version %d -> %d\n", ev.Previous.Version, ev.Current.Version)
		if ev.Diff.Content != nil {
			diffs := dmp.DiffMain(ev.Diff.Content.From, ev.Diff.Content.To, false)
			fmt.Println(dmp.DiffPrettyText(diffs))
		}
		if ev.Diff.Temperature != nil {
			fmt.Printf("temperature: %g -> %g\n", ev.Diff.Temperature.From, ev.Diff.Temperature.To)
		}
	})
	session.Errors().On(func(cerr *watcher.ClassifiedError) {
		logger.Warn("sync error",
			zap.String("category", string(cerr.Category)),
			zap.Int("consecutive_errors", cerr.ConsecutiveErrors),
			zap.Error(cerr))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nstopping")
	return nil
}
