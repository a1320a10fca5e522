// Package task provides commands for driving review tasks from the CLI
package task

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/datastore"
	"github.com/clinreview/clinreview/internal/review"
)

const commandTimeout = time.Minute

// Command creates and returns the task command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage review tasks",
	}

	cmd.AddCommand(
		createCommand(settings),
		generateCommand(settings),
		assignCommand(settings),
		metricsCommand(settings),
	)

	return cmd
}

// openService opens the configured datastore and builds a review service
// on top of it. The caller must Close the returned datastore.
func openService(settings *conf.Settings) (datastore.Interface, *review.Service, error) {
	ds := datastore.New(settings, nil)
	if err := ds.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	return ds, review.NewService(ds, &settings.Review, nil, nil), nil
}

func parseTaskID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid task ID %q", arg)
	}
	return uint(id), nil
}

func createCommand(settings *conf.Settings) *cobra.Command {
	var (
		name                string
		batchRef            string
		sampleSize          int
		mode                string
		strategy            string
		keys                []string
		confidenceThreshold float64
		lowConfidenceWeight float64
		fpThreshold         float64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a review task over an imported batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, svc, err := openService(settings)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck // nothing meaningful to do on close failure

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			task, err := svc.CreateTask(ctx, &review.CreateTaskParams{
				Name:       name,
				BatchRef:   batchRef,
				SampleSize: sampleSize,
				Mode:       mode,
				Sampling: review.SamplingConfig{
					Strategy:            strategy,
					Keys:                keys,
					ConfidenceThreshold: confidenceThreshold,
					LowConfidenceWeight: lowConfidenceWeight,
				},
				FPThreshold: fpThreshold,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created task %d (%s) over batch %s\n", task.ID, task.Name, batchRef)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Task name")
	cmd.Flags().StringVarP(&batchRef, "batch", "b", "", "Batch reference to audit")
	cmd.Flags().IntVarP(&sampleSize, "size", "s", 0, "Number of annotations to sample")
	cmd.Flags().StringVarP(&mode, "mode", "m", datastore.ModeSingle, "Review mode: single or double_blind")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Sampling strategy: random, stratified or confidence_weighted")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "Stratification keys for the stratified strategy")
	cmd.Flags().Float64Var(&confidenceThreshold, "confidence-threshold", 0, "Low/high confidence split for confidence_weighted sampling")
	cmd.Flags().Float64Var(&lowConfidenceWeight, "low-weight", 0, "Oversampling weight for low confidence annotations")
	cmd.Flags().Float64Var(&fpThreshold, "fp-threshold", 0, "Acceptable false positive rate")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("size")

	return cmd
}

func generateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [task-id]",
		Short: "Draw the sample set for a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			ds, svc, err := openService(settings)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck // nothing meaningful to do on close failure

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			samples, err := svc.GenerateSamples(ctx, taskID)
			if err != nil {
				return err
			}

			fmt.Printf("Generated %d samples for task %d\n", len(samples), taskID)
			return nil
		},
	}
}

func assignCommand(settings *conf.Settings) *cobra.Command {
	var (
		reviewers  []string
		arbitrator string
	)

	cmd := &cobra.Command{
		Use:   "assign [task-id]",
		Short: "Assign reviewers and an optional arbitrator to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			ds, svc, err := openService(settings)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck // nothing meaningful to do on close failure

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			assignments, err := svc.AssignReviewers(ctx, taskID, reviewers, arbitrator)
			if err != nil {
				return err
			}

			for _, a := range assignments {
				fmt.Printf("Assigned reviewer %d as %s (%d samples)\n",
					a.ReviewerID, a.Role, a.TotalAssigned)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&reviewers, "reviewers", "r", nil, "Reviewer references, primary first")
	cmd.Flags().StringVarP(&arbitrator, "arbitrator", "a", "", "Arbitrator reference for double-blind tasks")
	_ = cmd.MarkFlagRequired("reviewers")

	return cmd
}

func metricsCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [task-id]",
		Short: "Calculate and print the metrics report for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			ds, svc, err := openService(settings)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck // nothing meaningful to do on close failure

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			report, err := svc.CalculateMetrics(ctx, taskID)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
