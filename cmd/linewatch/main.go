package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"linewatch/internal/compose"
	"linewatch/internal/config"
	"linewatch/internal/db"
	"linewatch/internal/domain"
	"linewatch/internal/feed"
	"linewatch/internal/metrics"
	"linewatch/internal/monitor"
	"linewatch/internal/notify"
	"linewatch/internal/repo"
	"linewatch/internal/server"
	"linewatch/internal/state"
	linewatchsdk "linewatch/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "linewatch",
	Short: "Linewatch CLI",
	Long: `Linewatch polls a transit feed for disruptions on one line and tells you
when something changes.
- Workspace: the directory holding linewatch.yml, the state file and the
  history database (.linewatch/).
- Source: where disruption data comes from (gtfs, deviations, or scrape).
- Transitions: each poll classifies the change as new, updated, ongoing,
  resolved, or none; only real changes notify.
- Channels: desktop popups, email, and MQTT; the notify table in the
  config decides which transitions go where.
- History: every check and every dispatched notification is recorded and
  queryable with 'linewatch history' and 'linewatch notifications'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LINEWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(notifyTestCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var lineID, lineName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default linewatch.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(lineID, lineName)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&lineID, "line", "29", "line id")
	cmd.Flags().StringVar(&lineName, "name", "", "line name")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one poll cycle",
		Long:  "Fetch the feed once, reconcile against the persisted state, dispatch whatever the notify table says, and record the outcome.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, r *monitor.Runner) error {
				check, err := r.Cycle(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(check)
			})
		},
	}
	return cmd
}

func watchCmd() *cobra.Command {
	var interval time.Duration
	var metricsAddr, apiAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll continuously",
		Long:  "Run poll cycles on the configured interval until interrupted. Optionally expose Prometheus metrics and the status API while running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withRunner(ctx, func(ctx context.Context, r *monitor.Runner) error {
				m := metrics.New(nil)
				r.Metrics = m
				if metricsAddr != "" {
					go serveHTTP(ctx, metricsAddr, metrics.Handler())
					fmt.Printf("Serving metrics on http://%s/metrics\n", metricsAddr)
				}
				if apiAddr != "" {
					handler := server.New(server.Config{
						Store:   r.Store,
						Repo:    r.Repo,
						Line:    r.Line,
						Metrics: metrics.Handler(),
					})
					go serveHTTP(ctx, apiAddr, handler)
					fmt.Printf("Serving status API on http://%s/v0\n", apiAddr)
				}
				tick := interval
				if tick <= 0 {
					tick = r.PollInterval
				}
				err := r.Watch(ctx, tick)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (overrides config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "expose the status API on this address")
	return cmd
}

func statusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the line's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				client := linewatchsdk.New(baseURL(addr))
				st, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printStatus(st)
			}
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			st := state.New(viper.GetString("workspace"), cfg.Line.ID).Load()
			out := linewatchsdk.LineStatus{
				Line:        cfg.Line.ID,
				Name:        cfg.Line.Name,
				StatusURL:   cfg.Line.StatusURL,
				ActiveCount: len(st.LastSnapshot.Records),
			}
			if !st.UpdatedAt.IsZero() {
				ts := st.UpdatedAt.UTC().Format(time.RFC3339)
				out.UpdatedAt = &ts
			}
			return printStatus(out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "query a running watch daemon instead of local files")
	return cmd
}

func printStatus(st linewatchsdk.LineStatus) error {
	if viper.GetBool("json") {
		return printJSON(st)
	}
	fmt.Printf("Line: %s (%s)\n", st.Line, st.Name)
	if st.UpdatedAt != nil {
		fmt.Printf("Last reconciled: %s\n", *st.UpdatedAt)
	} else {
		fmt.Println("Last reconciled: never")
	}
	if st.ActiveCount == 0 {
		fmt.Println("No reported disruptions")
	} else {
		fmt.Printf("Active disruptions: %d\n", st.ActiveCount)
	}
	if st.LastCheck != nil {
		fmt.Printf("Last check: %s (%s)\n", st.LastCheck.TS, st.LastCheck.Transition)
		if st.LastCheck.Error != "" {
			fmt.Printf("Last check error: %s\n", st.LastCheck.Error)
		}
	}
	if st.StatusURL != "" {
		fmt.Printf("Status page: %s\n", st.StatusURL)
	}
	return nil
}

func historyCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				checks, err := r.LatestChecks(ctx, cfg.Line.ID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(checks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Transition", "Records", "New", "Resolved", "Error"})
				for _, c := range checks {
					tw.AppendRow(table.Row{c.TS, c.Transition, c.RecordCount, c.NewCount, c.ResolvedCount, c.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of checks")
	return cmd
}

func notificationsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show recently dispatched notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				sent, err := r.LatestNotifications(ctx, cfg.Line.ID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sent)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Transition", "Title", "Channels", "Failures"})
				for _, s := range sent {
					tw.AppendRow(table.Row{s.TS, s.Transition, s.Title, strings.Join(s.Channels, ","), strings.Join(s.Failures, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of notifications")
	return cmd
}

func notifyTestCmd() *cobra.Command {
	var transition string
	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test notification through the configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			t := domain.Transition(transition)
			records := []domain.DisruptionRecord{{
				ID:      "test-1",
				Header:  "Test disruption",
				Details: "This is a linewatch channel test; no real disruption exists.",
			}}
			n, ok := compose.Compose(t, records, cfg.LineContext())
			if !ok {
				return fmt.Errorf("transition %q composes no notification", transition)
			}
			d := notify.NewDispatcher(notifiersFromConfig(cfg)...)
			kinds := d.Kinds()
			if len(kinds) == 0 {
				return fmt.Errorf("no channels enabled in config")
			}
			failures := d.Dispatch(cmd.Context(), n, kinds)
			for _, k := range kinds {
				if err := failures[k]; err != nil {
					fmt.Printf("%s: FAILED: %v\n", k, err)
				} else {
					fmt.Printf("%s: ok\n", k)
				}
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d channel(s) failed", len(failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transition, "transition", "new", "transition to simulate (new, updated, resolved)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := openDB(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			handler := server.New(server.Config{
				Store:    state.New(workspace, cfg.Line.ID),
				Repo:     &repo.Repo{DB: conn},
				Line:     cfg.LineContext(),
				BasePath: basePath,
				Metrics:  metrics.Handler(),
			})
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Linewatch API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func openDB(workspace string) (*sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openDB(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func withRunner(ctx context.Context, fn func(context.Context, *monitor.Runner) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	source, err := feed.FromConfig(cfg)
	if err != nil {
		return err
	}
	conn, err := openDB(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	d := notify.NewDispatcher(notifiersFromConfig(cfg)...)
	r := &monitor.Runner{
		Source:       source,
		Store:        state.New(workspace, cfg.Line.ID),
		Dispatcher:   d,
		Policy:       notify.PolicyFromConfig(cfg, d.Kinds()),
		Line:         cfg.LineContext(),
		Repo:         &repo.Repo{DB: conn},
		Timeout:      time.Duration(cfg.Poll.Timeout),
		PollInterval: time.Duration(cfg.Poll.Interval),
	}
	return fn(ctx, r)
}

func notifiersFromConfig(cfg *config.Config) []notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Channels.Desktop.Enabled {
		notifiers = append(notifiers, &notify.Desktop{})
	}
	if cfg.Channels.Email.Enabled {
		password := ""
		if cfg.Channels.Email.PasswordEnv != "" {
			password = os.Getenv(cfg.Channels.Email.PasswordEnv)
		}
		notifiers = append(notifiers, &notify.Email{
			From:     cfg.Channels.Email.From,
			To:       cfg.Channels.Email.To,
			Host:     cfg.Channels.Email.Host,
			Port:     cfg.Channels.Email.Port,
			Password: password,
		})
	}
	if cfg.Channels.MQTT.Enabled {
		notifiers = append(notifiers, &notify.MQTT{
			Broker:   cfg.Channels.MQTT.Broker,
			Topic:    cfg.Channels.MQTT.Topic,
			ClientID: cfg.Channels.MQTT.ClientID,
		})
	}
	return notifiers
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

// baseURL turns a daemon address into a client base URL, defaulting the
// scheme to http only when the address does not carry one.
func baseURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "http://" + addr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Println("error:", err)
	}
}
