package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"callfleet/internal/app"
	"callfleet/internal/campaign"
	"callfleet/internal/config"
	"callfleet/internal/db"
	"callfleet/internal/domain"
	"callfleet/internal/engine"
	"callfleet/internal/server"
	"callfleet/internal/session"
	"callfleet/internal/stats"
)

var rootCmd = &cobra.Command{
	Use:   "cf",
	Short: "Callfleet CLI",
	Long: `Callfleet manages a fleet of AI calling agents and the phone numbers they dial from.
- Agents: registry of calling agents with stats and performance figures ('cf agent').
- Numbers: catalog numbers you buy and assign, one number per agent ('cf number').
- Dashboard: fleet totals, alerts and a daily call chart ('cf dashboard', 'cf notifications', 'cf chart').
- Workspace: .callfleet/callfleet.db holds all state; callfleet.yml configures catalog, campaigns and webhooks.
- Event log: every change is recorded, view with 'cf log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	// Variables already set in the environment win over the workspace .env.
	envPath := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: read %s: %v\n", envPath, err)
	}
	viper.SetEnvPrefix("CALLFLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); defaults to callfleet.yml")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(numberCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
}

func agentCmd() *cobra.Command {
	ag := &cobra.Command{Use: "agent", Short: "Manage calling agents"}
	ag.AddCommand(agentListCmd())
	ag.AddCommand(agentCreateCmd())
	ag.AddCommand(agentShowCmd())
	ag.AddCommand(agentImportCmd())
	return ag
}

func agentImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all agents with a JSON list (as printed by 'cf agent list --json')",
		Long:  "Assigned numbers in the file are ignored; they are recomputed from the number inventory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var agents []domain.Agent
			if err := json.Unmarshal(data, &agents); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.Agents.ReplaceAll(ctx, agents); err != nil {
					return err
				}
				fmt.Printf("Imported %d agents\n", len(agents))
				return nil
			})
		},
	}
}

func agentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := []domain.Agent{}
				for _, a := range rt.Engine.Agents.ListAgents(ctx) {
					if status != "" && string(a.Status) != status {
						continue
					}
					items = append(items, a)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Status", "Country", "Calls", "Success", "Numbers"})
				for _, a := range items {
					tw.AppendRow(table.Row{
						a.ID, a.Name, a.Role, a.Status, countryLabel(a.Country),
						humanize.Comma(int64(a.Stats.TotalCalls)),
						fmt.Sprintf("%.0f%%", a.Performance.SuccessRate),
						strings.Join(a.AssignedPhoneNumbers, ", "),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, pending, inactive)")
	return cmd
}

func agentCreateCmd() *cobra.Command {
	var (
		draft       engine.AgentDraft
		countryCode string
		countryName string
		flag        string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Country = domain.Country{Name: countryName, Code: strings.ToUpper(countryCode), Flag: flag}
			if err := engine.ValidateDraft(draft); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.Agents.AddAgent(ctx, draft)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Created agent %s (%s)\n", a.ID, a.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&draft.Name, "name", "", "agent name")
	cmd.Flags().StringVar(&draft.Role, "role", "", "agent role")
	cmd.Flags().StringVar(&countryCode, "country-code", "", "ISO country code")
	cmd.Flags().StringVar(&countryName, "country", "", "country name")
	cmd.Flags().StringVar(&flag, "flag", "", "country flag emoji")
	cmd.Flags().StringVar(&draft.Language, "language", "", "spoken language")
	cmd.Flags().StringSliceVar(&draft.Specializations, "specialization", nil, "specialization (repeatable)")
	return cmd
}

func agentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.Agents.GetAgent(ctx, domain.ID(args[0]))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func numberCmd() *cobra.Command {
	num := &cobra.Command{Use: "number", Short: "Buy and assign phone numbers"}
	num.AddCommand(numberListCmd())
	num.AddCommand(numberAvailableCmd())
	num.AddCommand(numberBuyCmd())
	num.AddCommand(numberAssignCmd())
	num.AddCommand(numberReconcileCmd())
	return num
}

func numberListCmd() *cobra.Command {
	var unassigned bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List owned numbers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := []domain.PhoneNumber{}
				for _, n := range rt.Engine.Numbers.ListOwned(ctx) {
					if unassigned && n.AgentID != nil {
						continue
					}
					items = append(items, n)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Number", "Agent", "Price", "Purchased"})
				for _, n := range items {
					agent := "-"
					if n.AgentID != nil {
						agent = n.AgentID.String()
					}
					tw.AppendRow(table.Row{n.ID, n.Number, agent, money(n.Price, rt.Config.Payments.Currency), purchasedAgo(n.PurchasedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only numbers without an agent")
	return cmd
}

func numberAvailableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "available",
		Short: "List catalog numbers you do not own yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := rt.Engine.Numbers.Available(ctx)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Country", "Type", "Price"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.Number, c.Country, c.Type, money(c.Price, rt.Config.Payments.Currency)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func numberBuyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy <number>...",
		Short: "Purchase catalog numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.Numbers.Purchase(ctx, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				for _, n := range res.Numbers {
					fmt.Printf("Bought %s (id %s)\n", n.Number, n.ID)
				}
				fmt.Printf("Charged %s, receipt %s\n", money(res.Receipt.Amount, res.Receipt.Currency), res.Receipt.ID)
				return nil
			})
		},
	}
	return cmd
}

func numberAssignCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "assign <number-id>",
		Short: "Assign a number to an agent, releasing the agent's previous number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.Numbers.Assign(ctx, args[0], domain.ID(agentID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Applied {
					fmt.Printf("No owned number with id %s; agent %s now has no number\n", res.NumberID, res.AgentID)
					return nil
				}
				fmt.Printf("Assigned %s to agent %s\n", res.Number, res.AgentID)
				if len(res.Revoked) > 0 {
					fmt.Printf("Released: %s\n", strings.Join(res.Revoked, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func numberReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild agent number lists from the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				agents, err := rt.Engine.Reconciler.Reconcile(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				fmt.Printf("Reconciled %d agents\n", len(agents))
				return nil
			})
		},
	}
	return cmd
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show fleet totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				agents := rt.Engine.Agents.ListAgents(ctx)
				camps, err := rt.Campaigns.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				sum := stats.Summarize(agents)
				count := stats.NotificationCount(agents, camps)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"summary": sum, "notifications": count})
				}
				user, _ := rt.Session.UserName(ctx)
				if user != "" {
					fmt.Printf("Welcome back, %s\n", user)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Agents", fmt.Sprintf("%d (%d active)", sum.TotalAgents, sum.ActiveAgents)},
					{"Total calls", humanize.Comma(int64(sum.TotalCalls))},
					{"Avg call duration", sum.AverageDuration},
					{"Success rate", fmt.Sprintf("%d%%", sum.SuccessRate)},
					{"Conversion rate", fmt.Sprintf("%d%%", sum.ConversionRate)},
					{"Available credits", humanize.Comma(int64(sum.AvailableCredits))},
					{"Notifications", count},
				})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List current alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				camps, err := rt.Campaigns.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				items := stats.Notifications(rt.Engine.Agents.ListAgents(ctx), camps)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if len(items) == 0 {
					fmt.Println("No notifications")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Kind", "Title", "Message"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.Kind, n.Title, n.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func chartCmd() *cobra.Command {
	var (
		days int
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show the daily call volume chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				now := time.Now()
				if seed == 0 {
					seed = now.UnixNano()
				}
				points := stats.CallSeries(rt.Engine.Agents.ListAgents(ctx), now, rand.New(rand.NewSource(seed)), days)
				if viper.GetBool("json") {
					return printJSON(points)
				}
				peak := 1
				for _, p := range points {
					if p.Calls > peak {
						peak = p.Calls
					}
				}
				for _, p := range points {
					bar := strings.Repeat("█", p.Calls*40/peak)
					fmt.Printf("%s %5d %s\n", p.Date, p.Calls, bar)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", stats.DefaultSeriesDays, "number of days")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for reproducible output")
	return cmd
}

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Inspect campaigns"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Campaigns.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Progress"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Status, fmt.Sprintf("%d%%", c.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace stored campaigns with a YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := campaign.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Campaigns.Import(ctx, items); err != nil {
					return err
				}
				fmt.Printf("Imported %d campaigns\n", len(items))
				return nil
			})
		},
	})
	return c
}

func loginCmd() *cobra.Command {
	var (
		name  string
		token string
		mint  bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the signed-in user (and API token) in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if mint {
					secret := viper.GetString("jwt-secret")
					if secret == "" {
						return fmt.Errorf("CALLFLEET_JWT_SECRET is required to mint a token")
					}
					minted, err := session.MintToken(secret, name, rt.Config.TokenTTL(), time.Now())
					if err != nil {
						return err
					}
					token = minted
				}
				if err := rt.Session.Login(ctx, name, token); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user": name, "token": token})
				}
				fmt.Printf("Signed in as %s\n", name)
				if mint {
					fmt.Println(token)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().StringVar(&token, "token", "", "API token")
	cmd.Flags().BoolVar(&mint, "mint", false, "mint an API token signed with CALLFLEET_JWT_SECRET")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				name, err := rt.Session.UserName(ctx)
				if err != nil {
					return err
				}
				token, err := rt.Session.Token(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user": name, "has_token": token != ""})
				}
				if name == "" {
					fmt.Println("Not signed in")
					return nil
				}
				fmt.Println(name)
				return nil
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Session.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("Signed out")
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "callfleet.yml holds the number catalog, fallback campaigns, payment simulation, logout endpoint and webhooks. Without the file the built-in defaults apply.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force, genSecret bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default callfleet.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			if genSecret {
				envPath := filepath.Join(viper.GetString("workspace"), ".env")
				secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				if err := setEnvValue(envPath, "CALLFLEET_JWT_SECRET", secret); err != nil {
					return err
				}
				fmt.Printf("Wrote CALLFLEET_JWT_SECRET to %s\n", envPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().BoolVar(&genSecret, "gen-secret", false, "generate CALLFLEET_JWT_SECRET into the workspace .env")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate callfleet.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
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
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the workspace database, schema version and stored keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				st, err := rt.Status(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("Database: %s\n", st.Database)
				fmt.Printf("Schema:   %d (latest %d)\n", st.SchemaVersion, st.LatestSchema)
				keys := make([]string, 0, len(st.Keys))
				for k := range st.Keys {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Updated"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k, purchasedAgo(st.Keys[k])})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "When", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, purchasedAgo(evt.TS), evt.Type, strings.TrimSuffix(evt.EntityKind+":"+evt.EntityID, ":"), evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr     string
		basePath string
		origins  []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("CALLFLEET_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				handler, err := server.New(server.Config{
					Engine:         rt.Engine,
					Events:         rt.Repo,
					Campaigns:      rt.Campaigns,
					BasePath:       basePath,
					Auth:           server.AuthConfig{JWTSecret: secret},
					AllowedOrigins: origins,
					Logger:         rt.Log,
				})
				if err != nil {
					return err
				}
				hooksDone := server.StartWebhooks(ctx, rt.Repo, rt.Config.Webhooks, rt.Log)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving callfleet API")
				fmt.Printf("Serving Callfleet API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				<-hooksDone
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origin (repeatable)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), app.Options{LogLevel: viper.GetString("log-level")})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.ActorContext(ctx), rt)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func countryLabel(c domain.Country) string {
	label := c.Name
	if label == "" {
		label = c.Code
	}
	if c.Flag != "" {
		label = c.Flag + " " + label
	}
	return label
}

func money(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %s", humanize.CommafWithDigits(amount, 2), currency)
}

func purchasedAgo(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
