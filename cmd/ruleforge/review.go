package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

var (
	reviewReviewer string
	reviewNotes    string
	tasksLimit     int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the rule validation queue",
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List open validation tasks, oldest SLA deadline first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tasks, err := st.ListOpenTasks(ctx, tasksLimit)
		if err != nil {
			return err
		}
		return printJSON(tasks)
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <task-id>",
	Short: "Approve a task and its rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return closeTask(cmd, args[0], model.TaskStatusApproved)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <task-id>",
	Short: "Reject a task and its rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return closeTask(cmd, args[0], model.TaskStatusRejected)
	},
}

func closeTask(cmd *cobra.Command, taskID string, decision model.TaskStatus) error {
	if reviewReviewer == "" {
		return eris.New("--reviewer is required")
	}
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.CloseTask(ctx, taskID, decision, reviewReviewer, reviewNotes); err != nil {
		return err
	}
	return printJSON(map[string]string{
		"task_id":  taskID,
		"decision": string(decision),
	})
}

func init() {
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 50, "maximum tasks to list")
	reviewCmd.PersistentFlags().StringVar(&reviewReviewer, "reviewer", "", "reviewer identifier")
	reviewCmd.PersistentFlags().StringVar(&reviewNotes, "notes", "", "reviewer notes")
	reviewCmd.AddCommand(tasksCmd, approveCmd, rejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
