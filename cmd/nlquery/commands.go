package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"erp-nlquery/internal/access"
	"erp-nlquery/internal/common/auth"
	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/intent"
	"erp-nlquery/internal/llm"
	"erp-nlquery/internal/models"
	"erp-nlquery/internal/pipeline"
	"erp-nlquery/internal/planner"
	"erp-nlquery/internal/store"
	"erp-nlquery/pkg/registry"
)

type classifyOptions struct {
	roles    []string
	context  string
	fallback bool
}

func newClassifyCmd() *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify [question]",
		Short: "Show the intent, parameters and SQL plan for a question",
		Long: `Runs classification and planning for a question without touching the
database. Useful for checking which intent a phrasing lands on and which
arguments the template receives.

Example:
  nlquery classify --role teacher "Show me the timetable for Class 10A"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, opts, args)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.roles, "role", "r", []string{"admin"}, "caller roles")
	cmd.Flags().StringVar(&opts.context, "context", "", `JSON object of known parameters, e.g. '{"class_id":10}'`)
	cmd.Flags().BoolVar(&opts.fallback, "fallback", false, "use the language model when no pattern matches")
	return cmd
}

func newIntentsCmd() *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "List the supported intents and which of them the given roles may use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIntents(cmd, roles)
		},
	}
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "caller roles")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print column information for the allowed tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchema(cmd, table)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "a single table to describe")
	return cmd
}

func newWorkersCmd() *cobra.Command {
	var registryPath string
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List the Zeebe job types and their configured limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkers(cmd, registryPath)
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry", "", "read activities from a registry file instead of the built-in catalog")
	return cmd
}

type tokenOptions struct {
	user  string
	roles []string
	ttl   time.Duration
}

func newTokenCmd() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured secret",
		Long: `Mints an HS256 token the API accepts. Intended for local testing; in
production tokens come from the ERP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "user id (sub claim)")
	cmd.Flags().StringSliceVarP(&opts.roles, "role", "r", []string{"teacher"}, "roles claim")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type planView struct {
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Source     string                 `json:"source"`
	Parameters map[string]interface{} `json:"parameters"`
	Template   string                 `json:"template,omitempty"`
	Args       []interface{}          `json:"args,omitempty"`
	Outcome    string                 `json:"outcome"`
}

func runClassify(cmd *cobra.Command, opts *classifyOptions, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	hints := models.Params{}
	if opts.context != "" {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(opts.context), &raw); err != nil {
			return fmt.Errorf("--context must be a JSON object: %w", err)
		}
		hints = models.ParamsFromMap(raw)
	}

	var fallback intent.Classifier
	if opts.fallback {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GenAI, nil, appLog)
		if err != nil {
			return err
		}
		fallback = llm.NewGeminiClassifier(gemini, cfg.GenAI, appLog)
	}

	plans := planner.New(access.NewMatrix(appLog), cfg.Query.MaxRows, appLog)
	res, err := pipeline.New(fallback, plans, appLog).ClassifyAndPlan(ctx, question, hints, opts.roles)

	view := planView{
		Intent:     string(res.Extraction.Intent),
		Confidence: res.Extraction.Confidence,
		Source:     res.Source,
		Parameters: res.Extraction.Parameters.Map(),
		Outcome:    "planned",
	}
	switch {
	case errors.Is(err, pipeline.ErrUnknownIntent):
		view.Outcome = "unknown"
	case errors.Is(err, planner.ErrForbidden):
		view.Outcome = "forbidden"
	case err != nil:
		view.Outcome = err.Error()
	default:
		view.Template = strings.TrimSpace(res.Plan.Template)
		view.Args = res.Plan.Args
	}
	return printJSON(cmd.OutOrStdout(), view)
}

func runIntents(cmd *cobra.Command, roles []string) error {
	allowed := map[models.Intent]bool{}
	for _, in := range access.NewMatrix(appLog).AllowedForRoles(roles) {
		allowed[in] = true
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTENT\tALLOWED\tDESCRIPTION")
	for _, info := range pipeline.ListSupportedIntents() {
		mark := "-"
		if allowed[info.Name] {
			mark = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, mark, info.Description)
	}
	return w.Flush()
}

func runSchema(cmd *cobra.Command, table string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pg, err := connectPostgres(ctx, cfg.Database.Postgres, "PostgreSQL")
	if err != nil {
		return err
	}
	defer pg.Close()

	inspector := store.NewSchemaInspector(pg.DB, cfg.Database.Postgres.Schema, cfg.Query.AllowedTables, appLog)
	if table != "" {
		columns, err := inspector.TableSchema(ctx, table)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"table": table, "columns": columns})
	}
	return printJSON(cmd.OutOrStdout(), inspector.AllSchemas(ctx))
}

func runWorkers(cmd *cobra.Command, registryPath string) error {
	reg := registry.Default()
	if registryPath != "" {
		var err error
		if reg, err = registry.LoadRegistry(registryPath); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK TYPE\tENABLED\tMAX JOBS\tTIMEOUT\tERROR CODES")
	for _, a := range reg.Activities {
		wc := config.GetWorkerConfig(cfg, a.TaskType)
		enabled := "no"
		if config.IsWorkerEnabled(cfg, a.TaskType) {
			enabled = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", a.TaskType, enabled, wc.MaxJobsActive,
			config.GetDuration(wc.Timeout), strings.Join(a.ErrorCodes, ","))
	}
	return w.Flush()
}

func runToken(cmd *cobra.Command, opts *tokenOptions) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not set")
	}
	for _, r := range opts.roles {
		if _, ok := models.ParseRole(r); !ok {
			return fmt.Errorf("unknown role %q", r)
		}
	}

	token, err := auth.IssueToken(cfg.Auth, opts.user, opts.roles, opts.ttl, time.Now())
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
