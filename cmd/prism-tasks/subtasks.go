package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"prism-tasks/domain"
)

func (c *cli) subtaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtask",
		Short: "Manage the checklist of a task",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add TASK_ID TITLE",
			Short: "Append a subtask",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.openSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer s.Close()
				p, err := s.AddSubtask(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				sub, err := p.Wait(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", sub.ID, sub.Title)
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle TASK_ID SUBTASK_ID",
			Short: "Flip a subtask between done and open",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.openSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer s.Close()
				p, err := s.ToggleSubtask(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				sub, err := p.Wait(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s completed = %t\n", sub.ID, sub.Completed)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm TASK_ID SUBTASK_ID",
			Short: "Delete a subtask",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.openSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer s.Close()
				p, err := s.DeleteSubtask(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				if _, err := p.Wait(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[1])
				return nil
			},
		},
	)
	return cmd
}

func (c *cli) attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach TASK_ID FILE",
		Short: "Upload a file to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			name := filepath.Base(args[1])
			p, err := s.AddAttachment(cmd.Context(), domain.Upload{
				Filename:    name,
				ContentType: mime.TypeByExtension(filepath.Ext(name)),
				Body:        f,
			})
			if err != nil {
				return err
			}
			att, err := p.Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attached %s %s\n", att.ID, att.File)
			return nil
		},
	}
}

func (c *cli) detachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach TASK_ID ATTACHMENT_ID",
		Short: "Remove an attachment from a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			p, err := s.DeleteAttachment(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if _, err := p.Wait(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[1])
			return nil
		},
	}
}
