package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/schedule"
	"github.com/mesh-intelligence/stride/pkg/types"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskMoveCmd())
	cmd.AddCommand(newTaskScheduleCmd())
	cmd.AddCommand(newTaskFocusCmd())
	cmd.AddCommand(newTaskRemindCmd())
	return cmd
}

type taskAddFlags struct {
	description string
	priority    int
	effort      int
	kind        string
	date        string
	clock       string
	duration    int
	project     string
	remind      int
}

func newTaskAddCmd() *cobra.Command {
	var f taskAddFlags
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Capture a task, or book an appointment with --time",
		Long: "Capture a task. With --time the task is booked into that slot; the\n" +
			"booking is rejected when it overlaps another one, falls outside work\n" +
			"hours or lies in the past.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskAdd(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.description, "description", "", "free text")
	cmd.Flags().IntVar(&f.priority, "priority", int(types.PriorityMedium), "priority 1..3")
	cmd.Flags().IntVar(&f.effort, "effort", int(types.EffortMedium), "effort 1..3")
	cmd.Flags().StringVar(&f.kind, "kind", string(types.KindTask), "task, appointment or meeting")
	cmd.Flags().StringVar(&f.date, "date", "", "execution date YYYY-MM-DD or \"today\"")
	cmd.Flags().StringVar(&f.clock, "time", "", "start time HH:MM; books the slot")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "booking length in minutes (default from config)")
	cmd.Flags().StringVar(&f.project, "project", "", "owning project uuid")
	cmd.Flags().IntVar(&f.remind, "remind", 0, "minutes before the start to remind")
	return cmd
}

func runTaskAdd(cmd *cobra.Command, title string, f taskAddFlags) error {
	if f.priority < 1 || f.priority > 3 || f.effort < 1 || f.effort > 3 {
		return userErr(fmt.Errorf("priority and effort must be between 1 and 3"))
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	loc := a.Validator.Policy().Loc()

	task := &types.Task{
		Title:           title,
		Description:     f.description,
		Priority:        types.Priority(f.priority),
		Effort:          types.Effort(f.effort),
		Kind:            types.TaskKind(f.kind),
		ProjectUUID:     f.project,
		ReminderMinutes: f.remind,
	}

	if f.clock != "" {
		date := f.date
		if date == "" || date == "today" {
			date = a.Clock.Now().In(loc).Format(dateLayout)
		}
		slot, err := schedule.ParseSlot(date, f.clock, f.duration, loc)
		if err != nil {
			return userErr(err)
		}
		task.Status = types.StatusScheduled
		if err := a.Validator.Commit(ctx, task, slot); err != nil {
			return classify(err)
		}
	} else {
		day, err := parseDate(f.date, loc)
		if err != nil {
			return err
		}
		task.ExecutionDate = day
		task.DurationMinutes = f.duration
		err = a.Store.UpdateTasks(ctx, func(tx types.TaskTx) error {
			return tx.CreateTask(task, types.OriginLocal)
		})
		if err != nil {
			return classify(err)
		}
	}
	a.Changed()

	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), task)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created task %d %s\n", task.LocalID, task.UUID)
	return nil
}

func newTaskListCmd() *cobra.Command {
	var (
		status  string
		date    string
		project string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(status)
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := types.TaskFilter{Statuses: statuses, ProjectUUID: project}
			day, err := parseDate(date, a.Validator.Policy().Loc())
			if err != nil {
				return err
			}
			if day != nil {
				next := day.AddDate(0, 0, 1)
				filter.From, filter.To = day, &next
			}

			var tasks []*types.Task
			err = a.Store.ViewTasks(cmd.Context(), func(tx types.TaskTx) error {
				tasks, err = tx.ListTasks(filter)
				return err
			})
			if err != nil {
				return classify(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), tasks)
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tSTATUS\tKIND\tDATE\tSLOT\tTITLE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", t.LocalID, t.Status, t.Kind, fmtDate(t.ExecutionDate), fmtSlot(t), t.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "comma-separated statuses")
	cmd.Flags().StringVar(&date, "date", "", "execution date YYYY-MM-DD or \"today\"")
	cmd.Flags().StringVar(&project, "project", "", "owning project uuid")
	return cmd
}

func newTaskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			to := types.TaskStatus(args[1])
			if !to.Valid() {
				return userErr(fmt.Errorf("%w: %q", types.ErrInvalidStatus, args[1]))
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.Machine.Transition(cmd.Context(), id, to)
			if err != nil {
				return classify(err)
			}
			a.Changed()
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d is %s\n", task.LocalID, task.Status)
			return nil
		},
	}
}

func newTaskScheduleCmd() *cobra.Command {
	var (
		date     string
		clock    string
		duration int
	)
	cmd := &cobra.Command{
		Use:   "schedule <id>",
		Short: "Book an existing task into a time slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if date == "" || date == "today" {
				date = a.Clock.Now().In(a.Validator.Policy().Loc()).Format(dateLayout)
			}
			task, err := a.Validator.Reschedule(cmd.Context(), id, date, clock, duration)
			if err != nil {
				return classify(err)
			}
			a.Changed()
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d booked %s %s\n", task.LocalID, fmtDate(task.ExecutionDate), fmtSlot(task))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&clock, "time", "", "start time HH:MM")
	cmd.Flags().IntVar(&duration, "duration", 0, "length in minutes (default: keep the current length)")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func newTaskFocusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "focus",
		Short: "Show the focused task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.Machine.Focused(cmd.Context())
			if err != nil {
				return classify(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), task)
			}
			if task == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no focused task")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", task.LocalID, task.Title)
			return nil
		},
	}
}

func newTaskRemindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Fire due reminders once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			due, err := a.Reminders.Due(cmd.Context())
			if err != nil {
				return classify(err)
			}
			if len(due) > 0 {
				a.Changed()
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), due)
			}
			for _, r := range due {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q starts in %d min (%s)\n",
					r.Kind, r.Task.Title, r.MinutesLeft, r.Task.ScheduledTime.Local().Format(time.Kitchen))
			}
			return nil
		},
	}
}
