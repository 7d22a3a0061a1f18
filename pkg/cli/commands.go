package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/censor-ci/censor/internal/engine"
	"github.com/censor-ci/censor/pkg/config"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/types"
)

func (c *CLI) newRunCmd() *cobra.Command {
	var req types.BuildRequest
	var requestFile string
	var keep bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a build and execute it in the foreground",
		Long: `Create a build for a configured project and execute it immediately,
streaming the build log. The exit status is non-zero when the build fails.`,
		Example: `  censor run --project 1 --branch main
  censor run --request build.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestFile != "" {
				r, err := engine.ReadRequest(requestFile)
				if err != nil {
					return err
				}
				req = r
			}
			return c.runBuild(cmd, req, keep)
		},
	}

	flags := cmd.Flags()
	flags.Int64VarP(&req.ProjectID, "project", "p", 0, "project id")
	flags.StringVarP(&req.Branch, "branch", "b", "", "branch to build (default: the project's default branch)")
	flags.StringVar(&req.Tag, "tag", "", "tag to build")
	flags.StringVar(&req.CommitID, "commit", "", "commit to build")
	flags.StringVar(&req.Source, "source", "manual", "what triggered the build")
	flags.StringVarP(&requestFile, "request", "r", "", "read the build request from a YAML or JSON file")
	flags.BoolVar(&keep, "keep", false, "keep the checkout after the build")

	return cmd
}

func (c *CLI) runBuild(cmd *cobra.Command, req types.BuildRequest, keep bool) error {
	rc := NewRuntimeConfig(c.config, cmd.Context())

	factory := engine.NewDependencyFactory(c.settings, c.logger)
	deps, err := factory.CreateDefaults()
	if err != nil {
		return err
	}
	defer deps.Store.Close()

	opts := factory.ExecutorOptions()
	opts.Output = c.output
	opts.KeepWorkspace = opts.KeepWorkspace || keep
	opts.Debug = c.settings.Log.Level == "debug"
	executor := engine.NewExecutor(deps, opts, c.logger)

	rec, err := engine.NewRecord(req, time.Now())
	if err != nil {
		return err
	}
	if err := deps.Store.Save(rc.Context, rec); err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	c.console.Info(fmt.Sprintf("Created build #%d for project %d", rec.ID(), rec.ProjectID()))

	status, err := executor.Execute(rc.Context, rec.ID())
	if err != nil {
		return err
	}
	if status != types.StatusSuccess {
		return fmt.Errorf("build #%d failed", rec.ID())
	}
	c.console.Success(fmt.Sprintf("Build #%d passed in %s", rec.ID(), time.Since(rc.StartTime).Round(time.Millisecond)))
	return nil
}

func (c *CLI) newShowCmd() *cobra.Command {
	var showLog bool

	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show a stored build and the errors it reported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid build id %q", args[0])
			}
			return c.showBuild(cmd, id, showLog)
		},
	}
	cmd.Flags().BoolVarP(&showLog, "log", "l", false, "print the captured build log")
	return cmd
}

func (c *CLI) showBuild(cmd *cobra.Command, id int64, showLog bool) error {
	deps, err := engine.NewDependencyFactory(c.settings, c.logger).CreateDefaults()
	if err != nil {
		return err
	}
	defer deps.Store.Close()

	rec, err := deps.Store.Load(cmd.Context(), id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BUILD\t#%d\n", rec.ID())
	fmt.Fprintf(w, "PROJECT\t%s\n", c.projectTitle(rec.ProjectID()))
	fmt.Fprintf(w, "STATUS\t%s\n", colorStatus(rec.Status()))
	fmt.Fprintf(w, "SOURCE\t%s\n", rec.Source())
	if rec.Tag() != "" {
		fmt.Fprintf(w, "TAG\t%s\n", rec.Tag())
	}
	fmt.Fprintf(w, "BRANCH\t%s\n", orDash(rec.Branch()))
	fmt.Fprintf(w, "COMMIT\t%s\n", orDash(rec.CommitID()))
	if rec.CommitMessage() != "" {
		fmt.Fprintf(w, "MESSAGE\t%s\n", firstLine(rec.CommitMessage()))
	}
	fmt.Fprintf(w, "CREATED\t%s\n", formatTime(rec.CreateDate()))
	fmt.Fprintf(w, "FINISHED\t%s\n", formatTime(rec.FinishDate()))
	if d := rec.Duration(); d > 0 {
		fmt.Fprintf(w, "DURATION\t%s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "ERRORS\t%d (%d new, %d in previous build)\n", rec.ErrorsTotal(), rec.ErrorsNew(), rec.ErrorsTotalPrevious())
	if err := w.Flush(); err != nil {
		return err
	}

	if errs := rec.Errors(); len(errs) > 0 {
		c.printf("\n")
		for _, e := range errs {
			c.printf("  %s\n", severityColor(e.Severity).Sprint(e.String()))
		}
	}

	if showLog {
		c.printf("\n")
		if log := rec.Log(); log != nil {
			c.printf("%s", *log)
		} else {
			c.console.Warn("No log captured for this build")
		}
	}
	return nil
}

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate the pipeline document of a checkout",
		Long: `Resolve the pipeline of the project checked out at path (default: the
current directory) and print the plugins each stage would run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return c.validate(path)
		},
	}
}

func (c *CLI) validate(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	manager := config.NewManager()
	if found := manager.FindConfig(abs); found != "" {
		c.console.Info(fmt.Sprintf("Using %s", filepath.Base(found)))
	} else {
		c.console.Info("No pipeline document found, using zero-config detection")
	}

	cfg, err := manager.LoadProjectConfig(abs)
	if err != nil {
		return err
	}
	plan, err := config.NewResolver(plugins.DefaultRegistry()).Resolve(cfg, abs)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tPLUGINS")
	for _, stage := range types.Stages {
		entries := plan.Stage(stage)
		if len(entries) == 0 {
			continue
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Plugin
		}
		fmt.Fprintf(w, "%s\t%s\n", stage, strings.Join(names, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if plan.Len() == 0 {
		c.console.Warn("The pipeline has no plugins")
		return nil
	}
	c.console.Success("Pipeline is valid")
	return nil
}

func (c *CLI) newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the configured projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(c.settings.Projects) == 0 {
				c.console.Warn("No projects configured")
				return nil
			}
			w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tBRANCH\tREFERENCE")
			for _, p := range c.settings.Projects {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Title, p.Branch(""), p.Reference)
			}
			return w.Flush()
		},
	}
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of censor",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			c.printf("censor v%s\n", c.config.Version)
		},
	}
}

func (c *CLI) projectTitle(id int64) string {
	if p, ok := c.settings.Project(id); ok && p.Title != "" {
		return fmt.Sprintf("%s (%d)", p.Title, id)
	}
	return strconv.FormatInt(id, 10)
}

func colorStatus(s types.Status) string {
	switch s {
	case types.StatusSuccess:
		return color.GreenString(s.String())
	case types.StatusFailed:
		return color.RedString(s.String())
	case types.StatusRunning:
		return color.YellowString(s.String())
	default:
		return color.WhiteString(s.String())
	}
}

func severityColor(s types.Severity) *color.Color {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case types.SeverityHigh:
		return color.New(color.FgRed)
	case types.SeverityNormal:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
