package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

type refreshOptions struct {
	groupID string
	period  string
}

// newRefreshCmd пересчитывает снимок группы, не дожидаясь устаревания.
// Без --period пересчитываются все периоды.
func newRefreshCmd(root *rootOptions) *cobra.Command {
	opts := &refreshOptions{}
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute the stats snapshot of a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.groupID == "" {
				return errors.New("--group is required")
			}
			periods := stats.AllPeriods()
			if opts.period != "" {
				p, err := stats.ParsePeriod(opts.period)
				if err != nil {
					return err
				}
				periods = []stats.Period{p}
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			st, err := openStores(ctx, cfg, "", log)
			if err != nil {
				return err
			}
			defer st.Close()
			provider := newProvider(cfg, st, log)

			snaps := make([]*stats.Snapshot, len(periods))
			g, gctx := errgroup.WithContext(ctx)
			for i, p := range periods {
				g.Go(func() error {
					snap, err := provider.Recompute(gctx, opts.groupID, p)
					if err != nil {
						return fmt.Errorf("%s: %w", p, err)
					}
					snaps[i] = snap
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, snap := range snaps {
				log.Info("snapshot recomputed",
					logger.GroupID(snap.GroupID),
					logger.Period(string(snap.Period)),
					logger.Int("active_members", snap.MemberStats.ActiveMemberCount),
				)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snaps)
		},
	}
	cmd.Flags().StringVar(&opts.groupID, "group", "", "group id")
	cmd.Flags().StringVar(&opts.period, "period", "", "daily, weekly, monthly or all_time (default: all)")
	return cmd
}
