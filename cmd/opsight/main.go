package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opsight/internal/app"
	"opsight/internal/config"
	"opsight/internal/db"
	"opsight/internal/domain"
	"opsight/internal/engine"
	"opsight/internal/migrate"
	"opsight/internal/repo"
	"opsight/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "opsight",
	Short: "Opsight CLI",
	Long: `Opsight tracks team tasks and daily reports with audience-scoped visibility.
- Tasks are assigned to a user, a group, an identity class, or everyone.
- Four task kinds: checkbox (done once per person), amount (numeric total),
  quantity (whole units), chain (ordered entries).
- Progress is aggregated per task from the contribution log; cached counters
  update in the same transaction as the contribution itself.
- Daily reports are one per user per work date; resubmitting replaces.
- Admins manage their own group, super admins see everything.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OPSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "admin", "act as this user (id or username)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace, config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			} else {
				fmt.Printf("Config %s already exists, leaving it alone\n", cfgPath)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := app.EnsureBootstrap(ctx, r)
				if err != nil {
					return err
				}
				fmt.Printf("Database ready at %s (admin user: %s)\n", db.Path(workspace), u.Username)
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if cmd.Flags().Changed("addr") || cfg.Server.Addr == "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") || cfg.Server.BasePath == "" {
				cfg.Server.BasePath = basePath
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("OPSIGHT_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("jwt secret required; set auth.jwt_secret in %s or OPSIGHT_JWT_SECRET", config.Path(workspace))
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			if _, err := app.EnsureBootstrap(cmd.Context(), r); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:             secret,
					AllowLegacyUserHeader: cfg.Auth.AllowLegacyUserHeader,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Opsight API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttlHours int
	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Mint a JWT for a user (id or username)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			secret := os.Getenv("OPSIGHT_JWT_SECRET")
			if secret == "" && cfg != nil {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("jwt secret required; set auth.jwt_secret in %s or OPSIGHT_JWT_SECRET", config.Path(workspace))
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := lookupUser(ctx, r, args[0])
				if err != nil {
					return err
				}
				now := time.Now().UTC()
				claims := jwt.RegisteredClaims{
					Subject:   u.ID,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlHours) * time.Hour)),
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token, "user_id": u.ID})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 72, "token lifetime in hours")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userUpdateCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var draft engine.UserDraft
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				u, err := e.CreateUser(ctx, p, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&draft.Username, "username", "", "login name")
	cmd.Flags().StringVar(&draft.DisplayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&draft.Role, "role", "", "role (user, admin, super_admin)")
	cmd.Flags().StringVar(&draft.GroupID, "group", "", "group id")
	cmd.Flags().StringVar(&draft.IdentityClass, "identity", "", "identity class code")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func userListCmd() *cobra.Command {
	var opts engine.UserListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				users, err := e.ListUsers(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Role", "Group", "Identity", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Username, u.Role, deref(u.GroupID), deref(u.IdentityClass), u.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.GroupID, "group", "", "group filter")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role filter")
	cmd.Flags().BoolVar(&opts.ActiveOnly, "active", false, "active users only")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "max rows")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				u, err := e.GetUserProfile(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var displayName, role, group, identity string
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := engine.UserUpdate{ID: args[0]}
			if cmd.Flags().Changed("display-name") {
				upd.DisplayName = &displayName
			}
			if cmd.Flags().Changed("role") {
				upd.Role = &role
			}
			if cmd.Flags().Changed("group") {
				upd.GroupID = &group
			}
			if cmd.Flags().Changed("identity") {
				upd.IdentityClass = &identity
			}
			if cmd.Flags().Changed("active") {
				upd.IsActive = &active
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				u, err := e.UpdateUser(ctx, p, upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringVar(&group, "group", "", "group id (empty clears)")
	cmd.Flags().StringVar(&identity, "identity", "", "identity class (empty clears)")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func groupCmd() *cobra.Command {
	group := &cobra.Command{Use: "group", Short: "Manage groups"}
	group.AddCommand(groupCreateCmd())
	group.AddCommand(groupListCmd())
	group.AddCommand(groupDeleteCmd())
	return group
}

func groupCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				g, err := e.CreateGroup(ctx, p, name, description)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func groupListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				groups, err := e.ListGroups(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(groups)
			})
		},
	}
	return cmd
}

func groupDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				return e.DeleteGroup(ctx, p, args[0])
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks carry an audience (user, group, identity, everyone) and a kind (checkbox, amount, quantity, chain). Listing shows only tasks visible to the acting user.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskAmountCmd())
	task.AddCommand(taskQuantityCmd())
	task.AddCommand(taskChainCmd())
	task.AddCommand(taskCheckCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var draft engine.TaskDraft
	var targetValue float64
	var chainTarget int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("target-value") {
				draft.TargetValue = &targetValue
			}
			if cmd.Flags().Changed("chain-target") {
				draft.ChainTargetCount = &chainTarget
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				t, err := e.CreateTask(ctx, p, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&draft.Title, "title", "", "title")
	cmd.Flags().StringVar(&draft.Description, "description", "", "description")
	cmd.Flags().StringVar(&draft.TaskKind, "kind", "checkbox", "task kind (checkbox, amount, quantity, chain)")
	cmd.Flags().StringVar(&draft.AssignmentKind, "assign", "everyone", "assignment kind (user, group, identity, everyone)")
	cmd.Flags().StringVar(&draft.AssignedUserID, "user", "", "assigned user id (assignment kind user)")
	cmd.Flags().StringVar(&draft.TargetGroupID, "group", "", "target group id (assignment kind group)")
	cmd.Flags().StringVar(&draft.TargetIdentity, "identity", "", "target identity class (assignment kind identity)")
	cmd.Flags().StringVar(&draft.Priority, "priority", "", "priority (urgent, high, medium, low)")
	cmd.Flags().Float64Var(&targetValue, "target-value", 0, "numeric target for amount/quantity tasks")
	cmd.Flags().IntVar(&chainTarget, "chain-target", 0, "entry target for chain tasks")
	cmd.Flags().StringVar(&draft.DueDate, "due", "", "due date (RFC3339)")
	cmd.Flags().StringArrayVar(&draft.Tags, "tag", []string{}, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var opts engine.TaskListOptions
	var createdByMe, assignedToMe bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if createdByMe {
					opts.CreatedBy = p.UserID
				}
				if assignedToMe && opts.AssignedUserID == "" {
					opts.AssignedUserID = p.UserID
				}
				views, err := e.ListVisibleTaskViews(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Kind", "Status", "Priority", "Progress", "Participants"})
				for _, v := range views {
					tw.AppendRow(table.Row{v.ID, v.Title, v.TaskKind, v.Status, v.Priority,
						fmt.Sprintf("%.1f%%", v.AggregateProgress), v.ParticipantCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&opts.TaskKind, "kind", "", "task kind filter")
	cmd.Flags().StringVar(&opts.AssignedUserID, "user", "", "assigned user filter")
	cmd.Flags().BoolVar(&createdByMe, "created-by-me", false, "only tasks you created")
	cmd.Flags().BoolVar(&assignedToMe, "assigned-to-me", false, "only tasks assigned to you")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task with progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				view, err := e.GetTaskView(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, priority, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := engine.TaskUpdate{ID: args[0]}
			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				upd.Priority = &priority
			}
			if cmd.Flags().Changed("status") {
				upd.Status = &status
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				t, err := e.UpdateTask(ctx, p, upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&status, "status", "", "status (pending, processing, done, cancelled)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				return e.DeleteTask(ctx, p, args[0])
			})
		},
	}
	return cmd
}

func taskAmountCmd() *cobra.Command {
	var value float64
	var note string
	cmd := &cobra.Command{
		Use:   "amount <id>",
		Short: "Record an amount contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				view, err := e.RecordAmount(ctx, p, args[0], value, optionalString(note))
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	cmd.Flags().Float64Var(&value, "value", 0, "amount to add")
	cmd.Flags().StringVar(&note, "note", "", "note")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func taskQuantityCmd() *cobra.Command {
	var value float64
	var note string
	cmd := &cobra.Command{
		Use:   "quantity <id>",
		Short: "Record whole units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				view, err := e.RecordQuantity(ctx, p, args[0], value, optionalString(note))
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	cmd.Flags().Float64Var(&value, "value", 0, "units to add (fractions are truncated)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func taskChainCmd() *cobra.Command {
	var externalID, note, intention string
	cmd := &cobra.Command{
		Use:   "chain <id>",
		Short: "Append a chain entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				entry, err := e.AppendChainEntry(ctx, p, args[0], externalID, optionalString(note), optionalString(intention))
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&externalID, "external-id", "", "external reference id")
	cmd.Flags().StringVar(&note, "note", "", "note")
	cmd.Flags().StringVar(&intention, "intention", "", "intention")
	_ = cmd.MarkFlagRequired("external-id")
	return cmd
}

func taskCheckCmd() *cobra.Command {
	var value float64
	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Complete a checkbox task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var valuePtr *float64
			if cmd.Flags().Changed("value") {
				valuePtr = &value
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				view, err := e.CompleteCheckbox(ctx, p, args[0], valuePtr, nil)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	cmd.Flags().Float64Var(&value, "value", 0, "optional completion value")
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Manage daily reports"}
	report.AddCommand(reportSubmitCmd())
	report.AddCommand(reportListCmd())
	report.AddCommand(reportGetCmd())
	return report
}

func reportSubmitCmd() *cobra.Command {
	var draft engine.ReportDraft
	var workHours float64
	var mood, efficiency int
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit today's report (or a given date)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hours") {
				draft.WorkHours = &workHours
			}
			if cmd.Flags().Changed("mood") {
				draft.MoodScore = &mood
			}
			if cmd.Flags().Changed("efficiency") {
				draft.EfficiencyScore = &efficiency
			}
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				rep, err := e.SubmitReport(ctx, p, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&draft.WorkDate, "date", "", "work date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&draft.Title, "title", "", "title")
	cmd.Flags().StringVar(&draft.Content, "content", "", "content")
	cmd.Flags().Float64Var(&workHours, "hours", 0, "work hours")
	cmd.Flags().IntVar(&mood, "mood", 0, "mood score")
	cmd.Flags().IntVar(&efficiency, "efficiency", 0, "efficiency score")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func reportListCmd() *cobra.Command {
	var opts engine.ReportListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				reports, err := e.ListReports(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Date", "Title", "Hours"})
				for _, r := range reports {
					hours := ""
					if r.WorkHours != nil {
						hours = fmt.Sprintf("%.1f", *r.WorkHours)
					}
					tw.AppendRow(table.Row{r.ID, r.UserID, r.WorkDate, r.Title, hours})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "author filter")
	cmd.Flags().StringVar(&opts.From, "from", "", "start date (inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end date (inclusive)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "max rows")
	return cmd
}

func reportGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				rep, err := e.GetReport(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var forUser, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				raw, key, err := e.CreateAPIKey(ctx, p, forUser, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "user_id": key.UserID, "key": raw})
				}
				fmt.Printf("id: %s\nkey: %s\n", key.ID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&forUser, "user", "", "owner user id (defaults to acting user)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var forUser string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				keys, err := e.ListAPIKeys(ctx, p, forUser)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&forUser, "user", "", "owner filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				return e.DeleteAPIKey(ctx, p, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Audit event log"}
	logRoot.AddCommand(logTailCmd())
	return logRoot
}

func logTailCmd() *cobra.Command {
	var opts engine.EventListOptions
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				events, err := e.ListEvents(ctx, p, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&opts.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&opts.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&opts.EntityID, "entity-id", "", "entity id")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Store summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				stats, err := e.GetStats(ctx, p)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config file",
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

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn}
	if _, err := app.EnsureBootstrap(ctx, r); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withPrincipal(ctx context.Context, fn func(context.Context, engine.Engine, domain.Principal) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		u, err := lookupUser(ctx, e.Repo, viper.GetString("as"))
		if err != nil {
			return fmt.Errorf("resolve acting user %q: %w", viper.GetString("as"), err)
		}
		if !u.IsActive {
			return fmt.Errorf("acting user %s is deactivated", u.Username)
		}
		return fn(ctx, e, u.Principal())
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func lookupUser(ctx context.Context, r repo.Repo, ref string) (domain.User, error) {
	if u, err := r.GetUser(ctx, ref); err == nil {
		return u, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	return r.GetUserByUsername(ctx, ref)
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
