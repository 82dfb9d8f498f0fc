package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"repolens/internal/pipeline"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		refresh bool
		outDir  string
		only    []string
	)
	cmd := &cobra.Command{
		Use:   "analyze <repository-url>",
		Short: "Run every analysis task and store the composite result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()

			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			orch := svc.Orchestrator
			s, err := orch.StartSession(ctx, pipeline.Request{
				RepoURL: args[0],
				Role:    root.role,
				UserID:  root.user,
				Refresh: refresh,
			})
			if err != nil {
				return err
			}
			if s.FromCache {
				fmt.Fprintf(cmd.ErrOrStderr(), "serving %s from the result store (use --refresh to recompute)\n", s.Ref.FullName())
			}

			for _, raw := range only {
				task, err := pipeline.ParseTaskName(raw)
				if err != nil {
					orch.Abandon(s)
					return err
				}
				if err := orch.RunTask(ctx, s, task); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", task, err)
				}
			}
			out := orch.Finalize(ctx, s)

			for _, name := range orch.Registry().Tasks() {
				r, _ := s.Result(name)
				line := fmt.Sprintf("%-16s %s", name, r.Status)
				if r.Error != "" {
					line += "  " + r.Error
				}
				fmt.Fprintln(cmd.ErrOrStderr(), line)
			}
			if out.PersistErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", out.PersistErr)
			}

			if strings.TrimSpace(outDir) != "" {
				return writeJSONFile(outDir, s.Ref.Owner+"_"+s.Ref.Name+".json", out.Analysis)
			}
			return writeJSON(cmd.OutOrStdout(), out.Analysis)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the stored result and recompute")
	cmd.Flags().StringVar(&outDir, "out", "", "write the analysis to this directory instead of stdout")
	cmd.Flags().StringSliceVar(&only, "task", nil, "report errors for these tasks as they finish (structure, codeFacts, criticalPaths, dependencyGraph, tutorial)")
	return cmd
}
