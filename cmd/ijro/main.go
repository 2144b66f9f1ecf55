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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ijro/internal/app"
	"ijro/internal/config"
	"ijro/internal/db"
	"ijro/internal/domain"
	"ijro/internal/engine"
	"ijro/internal/migrate"
	"ijro/internal/repo"
	"ijro/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ijro",
	Short: "Ijro CLI",
	Long: `Ijro tracks district hokimiyat tasks across subordinate organizations.
- Workspace: the .ijro directory holding the database; the district config lives in the DB and is imported explicitly.
- Roles: admin, district_head, district_officer, org_head, org_officer; who may do what is fixed in the config tables.
- Tasks: created by the hokimiyat and assigned to organizations; each assignment moves new -> in_progress -> completed, and the task is closed by the hokimiyat once every organization has completed.
- Reports: organizations submit execution reports with comments and attachments.
- Audit log: every administrative action is recorded, view with 'ijro audit tail'.`,
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
	viper.SetEnvPrefix("IJRO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "admin", "acting user id")
	rootCmd.PersistentFlags().String("district", "", "district id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("district", rootCmd.PersistentFlags().Lookup("district"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "District task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"district_id": e.Config.District.ID,
					"task_counts": counts,
				})
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskAcceptCmd())
	task.AddCommand(taskReportCmd())
	task.AddCommand(taskCloseCmd())
	task.AddCommand(taskReassignCmd())
	task.AddCommand(taskCommentCmd())
	task.AddCommand(taskTimelineCmd())
	task.AddCommand(taskHistoryCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, description, priority, deadline string
	var orgIDs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{
					Title:       title,
					Description: description,
					Priority:    domain.Priority(priority),
					Deadline:    deadline,
					OrgIDs:      orgIDs,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", string(domain.PriorityImportant), "priority (urgent_important|important|not_urgent|routine)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC 3339, default derived from priority)")
	cmd.Flags().StringSliceVar(&orgIDs, "org", nil, "assigned organization id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.Status = domain.TaskStatus(status)
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Deadline", "Orgs"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Status, t.Deadline, len(t.Assignments)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.OrgID, "org", "", "organization filter")
	cmd.Flags().StringVar(&f.CreatorID, "creator", "", "creator filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <task-id>",
		Short: "Accept task for the acting user's organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.AcceptTask(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskReportCmd() *cobra.Command {
	var comment string
	var attachments []string
	cmd := &cobra.Command{
		Use:   "report <task-id>",
		Short: "Submit execution report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.SubmitReport(ctx, actor, args[0], comment, attachments)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "report comment")
	cmd.Flags().StringSliceVar(&attachments, "attachment", nil, "attachment reference (repeatable)")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func taskCloseCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "close <task-id>",
		Short: "Close task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.CloseTask(ctx, actor, args[0], comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "closing comment")
	return cmd
}

func taskReassignCmd() *cobra.Command {
	var orgIDs []string
	cmd := &cobra.Command{
		Use:   "reassign <task-id>",
		Short: "Assign task to more organizations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.ReassignTask(ctx, actor, args[0], orgIDs)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringSliceVar(&orgIDs, "org", nil, "organization id (repeatable)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func taskCommentCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Comment on task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.AddComment(ctx, actor, args[0], content)
			})
		},
	}
	cmd.Flags().StringVar(&content, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func taskTimelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <task-id>",
		Short: "Show task timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTimeline(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Actor", "Kind", "Content"})
				for _, entry := range items {
					tw.AppendRow(table.Row{entry.TS, entry.ActorID, entry.Kind, entry.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show task execution records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListExecutionRecords(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Actor", "Action", "Comment"})
				for _, rec := range items {
					tw.AppendRow(table.Row{rec.TS, rec.ActorID, rec.Action, rec.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userBlockCmd())
	user.AddCommand(userArchiveCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var pnfl, fullName, role, orgID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				u, err := e.CreateUser(ctx, actor, engine.UserCreateOptions{
					PNFL:     pnfl,
					FullName: fullName,
					Role:     domain.Role(role),
					OrgID:    orgID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&pnfl, "pnfl", "", "14-digit personal number")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", "", "role (admin|district_head|district_officer|org_head|org_officer)")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (org roles only)")
	_ = cmd.MarkFlagRequired("pnfl")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	var f repo.UserFilters
	var role, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.Role = domain.Role(role)
				f.Status = domain.UserStatus(status)
				users, err := e.Repo.ListUsers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Org", "Status"})
				for _, u := range users {
					org := ""
					if u.OrgID != nil {
						org = *u.OrgID
					}
					tw.AppendRow(table.Row{u.ID, u.FullName, u.Role, org, u.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().StringVar(&f.OrgID, "org", "", "organization filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func userBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <user-id>",
		Short: "Block user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				u, err := e.BlockUser(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func userArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <user-id>",
		Short: "Archive user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				u, err := e.ArchiveUser(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgListCmd())
	org.AddCommand(orgDeactivateCmd())
	return org
}

func orgCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.CreateOrganization(ctx, actor, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "organization id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orgs, err := e.Repo.ListOrganizations(ctx, activeOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orgs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Active"})
				for _, o := range orgs {
					tw.AppendRow(table.Row{o.ID, o.Name, o.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active organizations")
	return cmd
}

func orgDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <org-id>",
		Short: "Deactivate organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.DeactivateOrganization(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func auditCmd() *cobra.Command {
	audit := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	var f repo.AuditFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.Limit == 0 {
					f.Limit = 20
				}
				items, err := e.Repo.ListAuditLog(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Actor", "Action", "Target"})
				for _, entry := range items {
					tw.AppendRow(table.Row{entry.ID, entry.TS, entry.ActorID, entry.Action, entry.TargetType + "/" + entry.TargetID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	tail.Flags().StringVar(&f.Action, "action", "", "action filter")
	tail.Flags().IntVar(&f.Limit, "limit", 20, "max entries")
	audit.AddCommand(tail)
	return audit
}

func notifyCmd() *cobra.Command {
	notify := &cobra.Command{Use: "notify", Short: "Inspect notifications"}
	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListNotifications(ctx, viper.GetString("user-id"), unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Title, n.Read, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	list.Flags().IntVar(&limit, "limit", 0, "max entries")
	notify.AddCommand(list)
	return notify
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage district config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show stored district config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stored, err := e.Repo.GetDistrictConfig(ctx, e.Config.District.ID)
				if err != nil {
					return err
				}
				raw, err := stored.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(raw))
				return nil
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import district config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.ImportConfig(ctx, actor, data)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to config YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var districtID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ijro.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(config.GenerateDefault(districtID)), 0o644)
		},
	}
	cmd.Flags().StringVar(&districtID, "district", "district", "district id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{
					JWTSecret:             os.Getenv("IJRO_JWT_SECRET"),
					AllowLegacyUserHeader: allowLegacy,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("IJRO_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Ijro API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept deprecated X-User-Id header")
	return cmd
}

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
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, viper.GetString("district"), r)
	if err != nil {
		return err
	}
	if err := app.Bootstrap(ctx, r, cfg); err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withActor(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		userID := viper.GetString("user-id")
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("acting user %s: %w", userID, err)
		}
		if u.Status != domain.UserActive {
			return fmt.Errorf("acting user %s is %s", userID, u.Status)
		}
		orgID := ""
		if u.OrgID != nil {
			orgID = *u.OrgID
		}
		return fn(ctx, e, domain.Actor{UserID: u.ID, Role: u.Role, OrgID: orgID})
	})
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
