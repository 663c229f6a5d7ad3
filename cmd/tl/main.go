package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tootline/internal/app"
	"tootline/internal/auth"
	"tootline/internal/composer"
	"tootline/internal/config"
	"tootline/internal/db"
	"tootline/internal/deeplink"
	"tootline/internal/domain"
	"tootline/internal/endpoint"
	"tootline/internal/response"
	"tootline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Tootline, a Mastodon client",
	Long: `Tootline signs in to a Mastodon instance and publishes posts from the terminal.
- Sign in: tl auth login <instance>, open the printed URL, then tl auth code <code>.
- Post: tl post "hello" counts characters the way the server does before sending.
- Links: tootline://compose?... deep links prefill a draft (tl post --link).
- Credentials live in the workspace .tootline directory and are cleared by tl auth logout.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		_, err := db.EnsureWorkspace(workspace)
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TOOTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/tootline.yml)")
	rootCmd.PersistentFlags().String("storage", "", "credential storage backend: sqlite, file or memory")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	for _, name := range []string{"workspace", "json", "config", "storage", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(countCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in and out of an instance",
	}
	cmd.AddCommand(authLoginCmd(), authCodeCmd(), authLogoutCmd(), authCancelCmd(), authStatusCmd())
	return cmd
}

func authLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <instance>",
		Short: "Register with an instance and print the authorization URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				s, err := a.Auth.StartOAuthFlow(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(authView(s))
				}
				fmt.Printf("Open this URL, approve access, then run: tl auth code <code>\n\n  %s\n", s.AuthorizationURL)
				return nil
			})
		},
	}
}

func authCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code <authorization-code>",
		Short: "Finish signing in with the code the instance showed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				s, err := a.Auth.ContinueOAuthFlow(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return printAuthState(s)
			})
		},
	}
}

func authLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				s, err := a.Auth.SignOut(ctx)
				if err != nil {
					return err
				}
				return printAuthState(s)
			})
		},
	}
}

func authCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Abandon a pending sign-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				s, err := a.Auth.CancelSignin(ctx)
				if err != nil {
					return err
				}
				return printAuthState(s)
			})
		},
	}
}

func authStatusCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				s := a.Auth.State()
				if !verify || !s.Authenticated() {
					return printAuthState(s)
				}
				client, err := a.Auth.Client()
				if err != nil {
					return err
				}
				acct, err := client.VerifyCredentials(ctx).Unwrap()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"session": authView(s), "account": acct})
				}
				fmt.Printf("Signed in to %s as @%s\n", s.Domain, acct.Acct)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "check the token against the instance")
	return cmd
}

type postOptions struct {
	content     string
	mentions    []string
	visibility  string
	cw          string
	sensitive   bool
	lang        string
	replyTo     string
	edit        string
	link        string
	pollOptions []string
	pollExpires time.Duration
	pollMulti   bool
	pollHide    bool
	dryRun      bool
}

func (o postOptions) draft(args []string) (*composer.Draft, error) {
	d := &composer.Draft{}
	if o.link != "" {
		c, err := deeplink.Parse(o.link)
		if err != nil {
			return nil, err
		}
		d = c.Draft()
	}
	switch {
	case o.content != "":
		d.Content = o.content
	case len(args) > 0:
		d.Content = strings.Join(args, " ")
	}
	if len(o.mentions) > 0 {
		d.Mentions = mentionList(o.mentions)
	}
	if o.visibility != "" {
		v, err := domain.ParseVisibility(o.visibility)
		if err != nil {
			return nil, err
		}
		d.Visibility = v
	}
	if o.cw != "" || o.sensitive {
		d.Sensitive = true
		d.SensitiveDisclaimer = o.cw
	}
	if o.lang != "" {
		d.Language = o.lang
	}
	if o.replyTo != "" {
		d.InReplyToID = o.replyTo
	}
	d.PublishedStatusID = o.edit
	if len(o.pollOptions) > 0 {
		d.Poll = &domain.PollDraft{
			Options:    o.pollOptions,
			ExpiresIn:  int(o.pollExpires / time.Second),
			Multiple:   o.pollMulti,
			HideTotals: o.pollHide,
		}
	}
	if strings.TrimSpace(d.Content) == "" && d.Poll == nil {
		return nil, errors.New("nothing to post; pass text or --content")
	}
	return d, nil
}

func mentionList(names []string) string {
	var b strings.Builder
	for _, n := range names {
		n = strings.TrimPrefix(strings.TrimSpace(n), "@")
		if n == "" {
			continue
		}
		b.WriteString("@" + n + " ")
	}
	return b.String()
}

func postCmd() *cobra.Command {
	var o postOptions
	cmd := &cobra.Command{
		Use:   "post [text...]",
		Short: "Publish a post, or edit one with --edit",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.draft(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				policy := a.RefreshLimit(ctx)
				s, err := a.Composer.Emit(ctx, composer.StartDraft{Draft: d})
				if err != nil {
					return err
				}
				if s.Err != nil {
					return s.Err
				}
				if o.dryRun {
					return printCount(s.Draft.Mentions, s.Draft.Content, policy, deeplink.Build(deeplink.FromDraft(s.Draft)))
				}
				s, err = a.Composer.Publish(ctx)
				if err != nil {
					return err
				}
				if s.Err != nil {
					return s.Err
				}
				if viper.GetBool("json") {
					return printJSON(s.Status)
				}
				url := ""
				if s.Status.URL != nil {
					url = *s.Status.URL
				}
				fmt.Printf("Published %s %s\n", s.Status.ID, url)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.content, "content", "m", "", "post text")
	f.StringSliceVar(&o.mentions, "mention", nil, "account to mention (repeatable)")
	f.StringVar(&o.visibility, "visibility", "", "public, unlisted, private or direct")
	f.StringVar(&o.cw, "cw", "", "content warning text")
	f.BoolVar(&o.sensitive, "sensitive", false, "mark as sensitive")
	f.StringVar(&o.lang, "lang", "", "ISO 639 language code")
	f.StringVar(&o.replyTo, "reply-to", "", "status id to reply to")
	f.StringVar(&o.edit, "edit", "", "status id to edit instead of publishing")
	f.StringVar(&o.link, "link", "", "tootline://compose link to start from")
	f.StringArrayVar(&o.pollOptions, "poll-option", nil, "poll option (repeatable)")
	f.DurationVar(&o.pollExpires, "poll-expires", 24*time.Hour, "poll duration")
	f.BoolVar(&o.pollMulti, "poll-multiple", false, "allow multiple choices")
	f.BoolVar(&o.pollHide, "poll-hide-totals", false, "hide totals until the poll ends")
	f.BoolVar(&o.dryRun, "dry-run", false, "count and print the compose link without publishing")
	return cmd
}

func countCmd() *cobra.Command {
	var mentions []string
	var limit int
	cmd := &cobra.Command{
		Use:   "count <text...>",
		Short: "Count characters the way the server does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := composer.DefaultPolicy()
			if cfg, err := loadConfig(); err == nil {
				policy = cfg.Policy()
			}
			if limit > 0 {
				policy.Limit = limit
			}
			return printCount(mentionList(mentions), strings.Join(args, " "), policy, "")
		},
	}
	cmd.Flags().StringSliceVar(&mentions, "mention", nil, "account to mention (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "character limit (default from config)")
	return cmd
}

func printCount(mentions, content string, policy composer.Policy, link string) error {
	out := map[string]any{
		"count":     composer.Count(mentions, content),
		"limit":     policy.Limit,
		"remaining": policy.Remaining(mentions, content),
		"allowed":   policy.Allows(mentions, content),
	}
	if link != "" {
		out["link"] = link
	}
	if viper.GetBool("json") {
		return printJSON(out)
	}
	fmt.Printf("%d/%d characters, %d remaining\n", out["count"], policy.Limit, out["remaining"])
	if link != "" {
		fmt.Println(link)
	}
	return nil
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read statuses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c statusReader) error {
				st, err := c.Status(ctx, args[0]).Unwrap()
				if err != nil {
					return err
				}
				return printStatuses([]domain.Status{st})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "context <id>",
		Short: "Show a status with its ancestors and replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c statusReader) error {
				thread, err := c.StatusContext(ctx, args[0]).Unwrap()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(thread)
				}
				all := append(append([]domain.Status{}, thread.Ancestors...), thread.Descendants...)
				return printStatuses(all)
			})
		},
	})
	return cmd
}

func timelineCmd() *cobra.Command {
	var q endpoint.TimelineQuery
	cmd := &cobra.Command{
		Use:       "timeline home|public",
		Short:     "List a timeline",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"home", "public"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c statusReader) error {
				var items []domain.Status
				var err error
				switch args[0] {
				case "home":
					items, err = c.HomeTimeline(ctx, q).Unwrap()
				case "public":
					items, err = c.PublicTimeline(ctx, q).Unwrap()
				default:
					return fmt.Errorf("unknown timeline %q", args[0])
				}
				if err != nil {
					return err
				}
				return printStatuses(items)
			})
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "number of statuses")
	cmd.Flags().StringVar(&q.MaxID, "max-id", "", "older than this id")
	cmd.Flags().StringVar(&q.SinceID, "since-id", "", "newer than this id")
	cmd.Flags().BoolVar(&q.Local, "local", false, "public timeline: local posts only")
	return cmd
}

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Build and read tootline://compose links",
	}
	var c deeplink.Context
	var vis string
	var pollOptions []string
	var pollExpires time.Duration
	build := &cobra.Command{
		Use:   "build",
		Short: "Print a compose link",
		RunE: func(cmd *cobra.Command, args []string) error {
			if vis != "" {
				v, err := domain.ParseVisibility(vis)
				if err != nil {
					return err
				}
				c.Visibility = v
			}
			if len(pollOptions) > 0 {
				c.Poll = &domain.PollDraft{Options: pollOptions, ExpiresIn: int(pollExpires / time.Second)}
			}
			link := deeplink.Build(c)
			if viper.GetBool("json") {
				return printJSON(map[string]string{"link": link})
			}
			fmt.Println(link)
			return nil
		},
	}
	build.Flags().StringVar(&c.ReplyToID, "reply-to", "", "status id to reply to")
	build.Flags().StringVar(&c.ForwardURI, "forward", "", "status URI to forward")
	build.Flags().StringSliceVar(&c.Participants, "participant", nil, "account to mention (repeatable)")
	build.Flags().StringVar(&vis, "visibility", "", "public, unlisted, private or direct")
	build.Flags().StringArrayVar(&pollOptions, "poll-option", nil, "poll option (repeatable)")
	build.Flags().DurationVar(&pollExpires, "poll-expires", 24*time.Hour, "poll duration")

	parse := &cobra.Command{
		Use:   "parse <link>",
		Short: "Show what a compose link carries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := deeplink.Parse(args[0])
			if err != nil {
				return err
			}
			return printJSON(parsed)
		},
	}
	cmd.AddCommand(build, parse)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tootline.yml",
	}
	cmd.AddCommand(configInitCmd(), configShowCmd(), configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tootline.yml and a control-API secret to .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
				return err
			}
			cfg, err := config.FromFile(path)
			if err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			added, err := ensureEnvSecret(envPath, cfg.Server.JWTSecretEnv)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			if added {
				fmt.Printf("Set %s in %s\n", cfg.Server.JWTSecretEnv, envPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "tootline", "application name shown on the instance")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate tootline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var printToken bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				secretEnv := a.Config.Server.JWTSecretEnv
				secret := os.Getenv(secretEnv)
				if secret == "" {
					return fmt.Errorf("%s is required for bearer auth; run tl config init", secretEnv)
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				handler, err := server.New(server.Config{
					Auth:      a.Auth,
					Composer:  a.Composer,
					Repo:      a.Repo,
					BasePath:  basePath,
					JWTSecret: secret,
					Logger:    a.Log,
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, a.Repo, a.Config.Webhooks, a.Log)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Tootline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if printToken {
					token, err := server.SignToken(secret, "cli", server.DefaultTokenTTL)
					if err != nil {
						return err
					}
					fmt.Printf("Bearer token (valid %s): %s\n", server.DefaultTokenTTL, token)
				}
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "print a bearer token for the API")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the transition log",
	}
	var n int
	var machine string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent auth and composer transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.LatestTransitions(ctx, n, machine)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Machine", "Event", "From", "To", "Error"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.TS, t.Machine, t.Event, t.From, t.To, t.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of transitions")
	tail.Flags().StringVar(&machine, "machine", "", "auth or composer")
	cmd.AddCommand(tail)
	return cmd
}

// --- helpers ---

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	if p := viper.GetString("config"); p != "" {
		return config.FromFile(p)
	}
	return config.LoadOptional(viper.GetString("workspace"))
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Storage:    viper.GetString("storage"),
		Logger:     newLogger(),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// statusReader is the read side of the instance API the CLI uses.
type statusReader interface {
	Status(ctx context.Context, id string) response.Result[domain.Status]
	StatusContext(ctx context.Context, id string) response.Result[domain.Context]
	HomeTimeline(ctx context.Context, q endpoint.TimelineQuery) response.Result[[]domain.Status]
	PublicTimeline(ctx context.Context, q endpoint.TimelineQuery) response.Result[[]domain.Status]
}

func withClient(ctx context.Context, fn func(context.Context, statusReader) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		client, err := a.Auth.Client()
		if errors.Is(err, auth.ErrNotAuthenticated) {
			return errors.New("not signed in; run tl auth login <instance>")
		}
		if err != nil {
			return err
		}
		return fn(ctx, client)
	})
}

type authStateView struct {
	Phase            string `json:"phase"`
	Domain           string `json:"domain,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

func authView(s auth.State) authStateView {
	v := authStateView{Phase: string(s.Phase), Domain: s.Domain, AuthorizationURL: s.AuthorizationURL}
	if s.Token != nil {
		v.Scope = s.Token.Scope
	}
	return v
}

func printAuthState(s auth.State) error {
	if viper.GetBool("json") {
		return printJSON(authView(s))
	}
	switch s.Phase {
	case auth.PhaseAuthenticated:
		fmt.Printf("Signed in to %s (scope: %s)\n", s.Domain, authView(s).Scope)
	case auth.PhaseSigninInProgress:
		fmt.Printf("Sign-in to %s pending; run tl auth code <code>\n", s.Domain)
	default:
		fmt.Println("Signed out")
	}
	return nil
}

func printStatuses(items []domain.Status) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Account", "Created", "Visibility", "Content"})
	tw.SetColumnConfigs([]table.ColumnConfig{{Name: "Content", WidthMax: 60}})
	for _, s := range items {
		tw.AppendRow(table.Row{s.ID, s.Account.Acct, s.CreatedAt, s.Visibility, s.Content})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ensureEnvSecret adds a random secret under key unless the file already has one.
func ensureEnvSecret(path, key string) (bool, error) {
	env := map[string]string{}
	if existing, err := godotenv.Read(path); err == nil {
		env = existing
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if env[key] != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, err
	}
	env[key] = hex.EncodeToString(buf)
	if err := godotenv.Write(env, path); err != nil {
		return false, err
	}
	return true, os.Chmod(path, 0o600)
}
