package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/hopnetwork/reconciler/config"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/reconciler"
	"github.com/urfave/cli/v2"
)

// ReportCmd reconciles the data the syncers have already stored and prints
// the report. It does not sync: run the service first (or alongside) so the
// chain DBs are populated.
func ReportCmd(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx)
	if err != nil {
		return err
	}
	log.Init(c.Log)

	to := time.Now()
	if raw := cliCtx.String(config.FlagTo); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", config.FlagTo, err)
		}
	}
	from := to.Add(-c.Reconciler.Window.Duration)
	if raw := cliCtx.String(config.FlagFrom); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", config.FlagFrom, err)
		}
	}
	if !from.Before(to) {
		return fmt.Errorf("report window is empty: from %s to %s", from, to)
	}

	chains, err := createChains(cliCtx.Context, c)
	if err != nil {
		return err
	}
	engine := createEngine(c, chains)

	report, err := engine.Run(cliCtx.Context, from, to)
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, reconciler.Format(cliCtx.String(config.FlagOutputFormat)))
}
