package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prism-tasks/config"
)

var version = "dev"

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	configPath string
	app        *app
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prism-tasks",
		Short:         "Personal task manager client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		c.listCmd(),
		c.addCmd(),
		c.showCmd(),
		c.setCmd(),
		c.doneCmd(),
		c.rmCmd(),
		c.subtaskCmd(),
		c.attachCmd(),
		c.detachCmd(),
		c.notificationsCmd(),
		c.calendarCmd(),
		c.profileCmd(),
	)
	return root
}

// close releases the app built for the command, if any. Cobra skips post-run
// hooks when a command fails, so this runs after Execute instead.
func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func main() {
	c := &cli{}
	err := c.rootCmd().Execute()
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
