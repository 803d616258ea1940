package inspirer

import (
	"context"

	"github.com/spf13/cobra"
)

// RunFunc is the body of an application command. It runs after the App has
// been initialized with b.
type RunFunc func(ctx context.Context, b *Booter, args []string) error

type registeredCommand struct {
	cmd *cobra.Command
	run RunFunc
}

// CommandRegistry collects the commands an App adds to the command line.
type CommandRegistry struct {
	commands []registeredCommand
}

// Register adds cmd. Its Run and RunE fields are replaced: the framework boots
// the App and then calls run.
func (r *CommandRegistry) Register(cmd *cobra.Command, run RunFunc) {
	r.commands = append(r.commands, registeredCommand{cmd: cmd, run: run})
}

// Commands returns the registered commands, in registration order.
func (r *CommandRegistry) Commands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(r.commands))
	for _, rc := range r.commands {
		cmds = append(cmds, rc.cmd)
	}
	return cmds
}
