package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prism-tasks/coordinator"
	"prism-tasks/detail"
	"prism-tasks/domain"
	"prism-tasks/views"
)

const timeFormat = "2006-01-02 15:04"

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format(timeFormat)
}

func printTasks(w io.Writer, tasks []domain.Task, loc *time.Location) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	for _, t := range tasks {
		mark := " "
		if t.Complete {
			mark = "x"
		}
		flag := ""
		if t.Priority {
			flag = " !"
		}
		fmt.Fprintf(w, "[%s] %s  %s%s  due %s\n", mark, t.ID, t.Title, flag, formatTime(t.DueDate, loc))
	}
}

func (c *cli) listCmd() *cobra.Command {
	var query, bucket string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks matching a search and date bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := views.ParseBucket(bucket)
			if err != nil {
				return err
			}
			if err := c.app.load(cmd.Context()); err != nil {
				return err
			}
			c.app.board.SetQuery(query)
			c.app.board.SetBucket(b)
			printTasks(cmd.OutOrStdout(), c.app.board.Visible(), c.app.loc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive title search")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "all", "date bucket: day, week or all")
	return cmd
}

func (c *cli) addCmd() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := c.app.parseTime(due)
			if err != nil {
				return err
			}
			task, err := c.app.co.CreateTask(cmd.Context(), args[0], at)
			if task.ID == "" {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", task.ID, task.Title)
			return err
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date, e.g. 2024-06-10 or 2024-06-10T09:00")
	return cmd
}

// openSession opens a detail session on id, loading its sub-records.
func (c *cli) openSession(ctx context.Context, id string) (*detail.Session, error) {
	s, err := c.app.details.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open task %s: %w", id, err)
	}
	return s, nil
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a task with its subtasks and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			task, err := s.Task()
			if err != nil {
				return err
			}
			w, loc := cmd.OutOrStdout(), c.app.loc
			fmt.Fprintf(w, "%s\n", task.Title)
			fmt.Fprintf(w, "  id:        %s\n", task.ID)
			fmt.Fprintf(w, "  due:       %s\n", formatTime(task.DueDate, loc))
			fmt.Fprintf(w, "  remind me: %s\n", formatTime(task.RemindMe, loc))
			fmt.Fprintf(w, "  complete:  %t\n", task.Complete)
			fmt.Fprintf(w, "  priority:  %t\n", task.Priority)
			if task.Tags != "" {
				fmt.Fprintf(w, "  tags:      %s\n", task.Tags)
			}
			if task.Notes != "" {
				fmt.Fprintf(w, "  notes:     %s\n", strings.ReplaceAll(task.Notes, "\n", "\n             "))
			}
			for _, sub := range task.Subtasks {
				mark := " "
				if sub.Completed {
					mark = "x"
				}
				fmt.Fprintf(w, "  [%s] %s  %s\n", mark, sub.ID, sub.Title)
			}
			for _, att := range task.Attachments {
				fmt.Fprintf(w, "  @ %s  %s\n", att.ID, att.File)
			}
			return nil
		},
	}
}

// setField routes an edit through the detail session so text fields go
// through the same debounce as an interactive editor.
func setField(ctx context.Context, s *detail.Session, field domain.Field, value any) (*coordinator.Pending[domain.Task], error) {
	switch field {
	case domain.FieldTitle:
		return s.SetTitle(ctx, value.(string))
	case domain.FieldNotes:
		return s.SetNotes(ctx, value.(string))
	case domain.FieldTags:
		return s.SetTags(ctx, value.(string))
	case domain.FieldDueDate:
		return s.SetDueDate(ctx, value.(*time.Time))
	case domain.FieldRemindMe:
		return s.SetRemindMe(ctx, value.(*time.Time))
	case domain.FieldComplete:
		return s.SetComplete(ctx, value.(bool))
	case domain.FieldPriority:
		return s.SetPriority(ctx, value.(bool))
	}
	return nil, fmt.Errorf("unknown field %q", field)
}

func (c *cli) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set ID FIELD VALUE",
		Short: "Change one field of a task",
		Long: "Change one field of a task. FIELD is one of title, notes, tags, due_date, " +
			"remind_me, complete or priority. Use \"none\" to clear a date.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := domain.ParseField(args[1])
			if err != nil {
				return err
			}
			value, err := c.app.parseValue(field, args[2])
			if err != nil {
				return err
			}
			s, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := setField(cmd.Context(), s, field, value)
			s.Close()
			if err != nil {
				return err
			}
			task, err := p.Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", task.ID, field, display(task.Value(field), c.app.loc))
			return nil
		},
	}
}

func display(v any, loc *time.Location) any {
	if t, ok := v.(*time.Time); ok {
		return formatTime(t, loc)
	}
	return v
}

func (c *cli) doneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done ID",
		Short: "Mark a task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := c.app.co.UpdateField(cmd.Context(), args[0], domain.FieldComplete, !undo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s complete = %t\n", task.ID, task.Complete)
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the task incomplete instead")
	return cmd
}

func (c *cli) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.co.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
