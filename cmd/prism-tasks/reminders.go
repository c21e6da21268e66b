package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) notificationsCmd() *cobra.Command {
	var ack bool
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"reminders"},
		Short:   "Show reminders that are due",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.load(cmd.Context()); err != nil {
				return err
			}
			w, loc := cmd.OutOrStdout(), c.app.loc
			due := c.app.board.Notifications()
			if len(due) == 0 {
				fmt.Fprintln(w, "no reminders")
				return nil
			}
			for _, t := range due {
				fmt.Fprintf(w, "%s  %s  reminder %s\n", t.ID, t.Title, formatTime(t.RemindMe, loc))
			}
			if !ack {
				return nil
			}
			for _, t := range due {
				p, err := c.app.board.Acknowledge(cmd.Context(), t.ID)
				if err != nil {
					return err
				}
				if _, err := p.Wait(cmd.Context()); err != nil {
					return fmt.Errorf("acknowledge %s: %w", t.ID, err)
				}
				fmt.Fprintf(w, "acknowledged %s\n", t.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ack, "ack", false, "acknowledge every listed reminder")
	return cmd
}

func (c *cli) calendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [DATE]",
		Short: "List tasks due on a day, today by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := c.app.board.Now()
			if len(args) == 1 {
				d, err := time.ParseInLocation("2006-01-02", args[0], c.app.loc)
				if err != nil {
					return fmt.Errorf("cannot parse date %q", args[0])
				}
				day = d
			}
			if err := c.app.load(cmd.Context()); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\n", day.Format("Monday, 2 January 2006"))
			printTasks(w, c.app.board.Calendar(day), c.app.loc)
			return nil
		},
	}
}

func (c *cli) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.app.session.Bearer(); err != nil {
				return fmt.Errorf("%w: set PRISM_TOKEN", err)
			}
			p, err := c.app.session.LoadProfile(cmd.Context(), c.app.gateway)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", p.FullName, c.app.session.Subject())
			if p.Picture != "" {
				fmt.Fprintln(cmd.OutOrStdout(), p.Picture)
			}
			return nil
		},
	}
}
