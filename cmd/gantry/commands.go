package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/gantry/internal/api/rest"
	"github.com/clintrovert/gantry/pkg/types"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cfg, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()

			handler := rest.NewHandler(orch, logger)
			router := chi.NewRouter()
			router.Route("/api/v1", func(r chi.Router) {
				handler.RegisterRoutes(r)
			})
			router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			go func() {
				logger.Info("starting API server", zap.String("address", addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("failed to start server", zap.Error(err))
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync work items from the tracker and process new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, _, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()

			result, err := orch.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("sync %s: %d created, %d updated\n", result.RunID, result.Created, result.Updated)
			return nil
		},
	}
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Resume in-flight work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, _, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return orch.ProcessPendingTasks(cmd.Context())
		},
	}
}

func newTasksCmd() *cobra.Command {
	var stateFlag string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, _, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()

			var states []types.LifecycleState
			if stateFlag != "" {
				state, ok := types.ParseLifecycleState(stateFlag)
				if !ok {
					return fmt.Errorf("unknown lifecycle state %q", stateFlag)
				}
				states = append(states, state)
			}

			items, err := orch.GetTasks(cmd.Context(), states...)
			if err != nil {
				return err
			}
			for _, item := range items {
				repo := "-"
				if item.Repository != nil {
					repo = item.Repository.Name
				}
				fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
					item.ID, item.ExternalKey, item.LifecycleState, repo, item.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stateFlag, "state", "", "filter by lifecycle state")
	return cmd
}

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <task-id> <progress-id>",
		Short: "Approve a parked progress entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, progressID, err := parseIDs(args)
			if err != nil {
				return err
			}

			orch, _, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return orch.ApproveTaskProgress(cmd.Context(), taskID, progressID)
		},
	}
}

func newRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <task-id> <progress-id>",
		Short: "Reject a progress entry with a reason",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, progressID, err := parseIDs(args)
			if err != nil {
				return err
			}

			orch, _, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return orch.RejectTaskProgress(cmd.Context(), taskID, progressID, reason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the entry is rejected")
	cmd.MarkFlagRequired("reason")
	return cmd
}

func parseIDs(args []string) (uint, uint, error) {
	taskID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid task id %q", args[0])
	}
	progressID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid progress id %q", args[1])
	}
	return uint(taskID), uint(progressID), nil
}
