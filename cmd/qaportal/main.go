package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/airqa/qaportal/internal/apiclient"
	"github.com/airqa/qaportal/internal/config"
	"github.com/airqa/qaportal/internal/logger"
	"github.com/airqa/qaportal/internal/metrics"
	"github.com/airqa/qaportal/internal/portal"
	"github.com/airqa/qaportal/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// app is shared by the subcommands and built once the flags are parsed
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	client   *apiclient.Client
	portal   *portal.Portal
	registry *prometheus.Registry
	stdout   io.Writer

	showMetrics bool
}

func main() {
	a := &app{stdout: os.Stdout}
	cmd := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qaportal",
		Short:         "QA portal API client",
		Long:          `Command line client for the academic QA portal backend. Configuration is read from the environment (QA_API_BASE_URL, QA_TOKEN_FILE, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.showMetrics {
				return a.writeMetrics(os.Stderr)
			}
			return nil
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	cmd.PersistentFlags().BoolVar(&a.showMetrics, "metrics", false, "print client metrics to stderr when the command finishes")

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newGetCmd(a),
		newUploadCmd(a),
		newCoursesCmd(a),
		newInboxCmd(a),
		newMockServerCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
	a.registry = prometheus.NewRegistry()

	client, err := apiclient.New(cfg,
		apiclient.WithTokenStore(apiclient.NewFileStore(cfg.TokenFile)),
		apiclient.WithLogger(a.log),
		apiclient.WithMetrics(metrics.NewCollector(a.registry)),
	)
	if err != nil {
		return err
	}
	a.client = client
	a.portal = portal.New(client)

	a.log.Debug("using QA portal API", slog.String("base_url", client.BaseURL()), slog.String("version", version.Get().Version))
	return nil
}

// restore loads the persisted session and fails when there is none
func (a *app) restore(ctx context.Context) (apiclient.Session, error) {
	s := a.client.RestoreSession(ctx)
	if !s.IsAuthenticated() {
		return s, errors.New("not logged in, run 'qaportal login' first")
	}
	return s, nil
}

func newLoginCmd(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("QA_PASSWORD")
			}
			s, err := a.client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if s.User != nil {
				fmt.Fprintf(a.stdout, "logged in as %s (%s)\n", s.User.Username, s.User.Role)
			} else {
				fmt.Fprintln(a.stdout, "logged in")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (defaults to $QA_PASSWORD)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.Logout()
			fmt.Fprintln(a.stdout, "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.restore(cmd.Context())
			if err != nil {
				return err
			}
			if s.User == nil {
				return errors.New("session restored without a profile")
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "username\t%s\n", s.User.Username)
			fmt.Fprintf(w, "name\t%s\n", s.User.FullName)
			fmt.Fprintf(w, "email\t%s\n", s.User.Email)
			fmt.Fprintf(w, "role\t%s\n", s.User.Role)
			if !s.ExpiresAt.IsZero() {
				fmt.Fprintf(w, "expires\t%s\n", s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	var query []string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a backend path and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			q, err := parsePairs(query)
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if err := a.client.Get(cmd.Context(), args[0], &raw, apiclient.WithQuery(q)); err != nil {
				return err
			}
			return printJSON(a.stdout, raw)
		},
	}

	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "query parameter as key=value (repeatable)")
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	var (
		files  []string
		field  string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "POST files as multipart/form-data",
		Long:  `Uploads files to a backend path, e.g. qaportal upload /upload/123/quizzes --file quiz1.pdf`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			extra, err := splitPairs(fields)
			if err != nil {
				return err
			}

			form := apiclient.NewForm()
			for _, p := range extra {
				form.AddField(p.key, p.value)
			}
			for _, name := range files {
				f, err := os.Open(name)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", name, err)
				}
				defer f.Close()
				form.AddFile(field, filepath.Base(name), f)
			}

			var raw json.RawMessage
			if err := a.client.PostForm(cmd.Context(), args[0], form, &raw); err != nil {
				return err
			}
			return printJSON(a.stdout, raw)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "file to upload (repeatable)")
	cmd.Flags().StringVar(&field, "field", "file", "form field name for the files")
	cmd.Flags().StringArrayVar(&fields, "form", nil, "extra form field as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCoursesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List the courses visible to the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			courses, err := a.portal.ListCourses(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tSEMESTER\tYEAR")
			for _, c := range courses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.CourseCode, c.CourseName, c.Semester, c.Year)
			}
			return w.Flush()
		},
	}
}

func newInboxCmd(a *app) *cobra.Command {
	var (
		limit int
		ack   string
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show pending reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if ack != "" {
				if err := a.portal.AckReminder(cmd.Context(), ack); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "acknowledged %s\n", ack)
				return nil
			}
			reminders, err := a.portal.ReminderInbox(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTARGET\tCREATED")
			for _, r := range reminders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.TargetKey, r.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", portal.DefaultInboxLimit, "maximum number of reminders")
	cmd.Flags().StringVar(&ack, "ack", "", "acknowledge the reminder with this id instead of listing")
	return cmd
}

func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}

type pair struct {
	key   string
	value string
}

// splitPairs parses key=value arguments, keeping them in the order given
func splitPairs(args []string) ([]pair, error) {
	pairs := make([]pair, 0, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		pairs = append(pairs, pair{key: k, value: v})
	}
	return pairs, nil
}

// parsePairs turns key=value arguments into url.Values
func parsePairs(args []string) (url.Values, error) {
	pairs, err := splitPairs(args)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	for _, p := range pairs {
		values.Add(p.key, p.value)
	}
	return values, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// not JSON after all, print it as received
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// printError writes the user facing message of an API error, followed by any field errors
func printError(w io.Writer, err error) {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if apiErr.StatusCode > 0 {
		fmt.Fprintf(w, "Error (%d): %s\n", apiErr.StatusCode, apiErr.UserError())
	} else {
		fmt.Fprintf(w, "Error: %s\n", apiErr.UserError())
	}
	for _, fe := range apiErr.FieldErrors {
		if fe.Field != "" {
			fmt.Fprintf(w, "  %s: %s\n", fe.Field, fe.Message)
		}
	}
}
