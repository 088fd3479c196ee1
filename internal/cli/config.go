package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/ferry/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config [key=value]...",
		Short: "Show or persist configuration values",
		Long: `Without arguments, print the effective value of every key. With key=value
arguments, persist the values for later invocations; an empty value removes
the key. Environment variables (FERRY_REMOTE_HOST, ...) still take
precedence over persisted values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, key := range config.KnownKeys() {
					value, _ := a.cfg.Value(key)
					a.printf("%s = %s\n", key, value)
				}
				return nil
			}

			pairs := make(map[string]string, len(args))
			for _, arg := range args {
				key, value, err := config.ParseAssignment(arg)
				if err != nil {
					a.fail("config", arg, err)
					return nil
				}
				pairs[key] = value
			}
			if a.flags.DryRun {
				for _, arg := range args {
					a.dryRunf("set %s", arg)
				}
				return nil
			}
			if err := a.store.Set(pairs); err != nil {
				a.fail("config", a.store.Path(), err)
				return nil
			}
			a.log.Info("configuration saved", "path", a.store.Path(), "keys", len(pairs))
			return nil
		},
	}
}
