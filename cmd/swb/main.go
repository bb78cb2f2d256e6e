package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andrehe001/semanticworkbench/internal/advisor"
	"github.com/andrehe001/semanticworkbench/internal/app"
	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/db"
	"github.com/andrehe001/semanticworkbench/internal/detector"
	"github.com/andrehe001/semanticworkbench/internal/domain"
	"github.com/andrehe001/semanticworkbench/internal/engine"
	"github.com/andrehe001/semanticworkbench/internal/migrate"
	"github.com/andrehe001/semanticworkbench/internal/repo"
	"github.com/andrehe001/semanticworkbench/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "swb",
	Short: "Semantic workbench CLI",
	Long: `swb coordinates project work between a coordinator and a team.
- Brief: the coordinator names the project and what it is about.
- Goals: ordered goals, each with success criteria the team checks off.
- Readiness: a project stays in DRAFTING until every goal has criteria;
  marking it ready shares the goals with the team.
- Information requests: team members raise trackable asks; the
  coordinator resolves them by id.
- Detection: 'swb detect' screens a team message for a potential request.
State lives in the .swb workspace database; view changes with 'swb log tail'.`,
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
	viper.SetEnvPrefix("SWB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "coordinator", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(briefCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(readyCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Readiness", "Open Reqs", "Created"})
				for _, p := range items {
					open, err := r.CountOpenRequests(ctx, p.ID)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Readiness, open, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and everything it owns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteProject(ctx, e.Config.Project.ID)
			})
		},
	}
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage project config"}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigInitCmd())
	return cfg
}

func projectConfigInitCmd() *cobra.Command {
	var projectID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter swb.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "id", "default", "project id to seed")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func projectConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show project config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func briefCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Create the project brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateBrief(ctx, engine.CreateBriefOptions{
					ProjectID:   e.Config.Project.ID,
					Name:        name,
					Description: desc,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{
		Use:   "goal",
		Short: "Manage goals and success criteria",
	}
	goal.AddCommand(goalAddCmd())
	goal.AddCommand(goalListCmd())
	goal.AddCommand(goalCriteriaCmd())
	goal.AddCommand(goalCompleteCmd())
	return goal
}

func goalAddCmd() *cobra.Command {
	var text string
	var criteria []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a goal with success criteria",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.AddGoal(ctx, engine.AddGoalOptions{
					ProjectID: e.Config.Project.ID,
					Text:      text,
					Criteria:  criteria,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "goal text")
	cmd.Flags().StringArrayVar(&criteria, "criterion", []string{}, "success criterion (repeatable)")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func goalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List goals in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				goals, err := e.Repo.ListGoals(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Goal", "ID", "Criteria", "Done"})
				for _, g := range goals {
					done := 0
					for _, c := range g.Criteria {
						if c.Completed {
							done++
						}
					}
					tw.AppendRow(table.Row{g.Position, g.Text, g.ID, len(g.Criteria), done})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func goalCriteriaCmd() *cobra.Command {
	var goalID string
	var criteria []string
	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Append success criteria to a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				added, err := e.AddCriteria(ctx, e.Config.Project.ID, goalID, criteria, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(added)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	cmd.Flags().StringArrayVar(&criteria, "criterion", []string{}, "success criterion (repeatable)")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func goalCompleteCmd() *cobra.Command {
	var goalID, criterionID string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark a success criterion completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CompleteCriterion(ctx, e.Config.Project.ID, goalID, criterionID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	cmd.Flags().StringVar(&criterionID, "criterion", "", "criterion id")
	_ = cmd.MarkFlagRequired("goal")
	_ = cmd.MarkFlagRequired("criterion")
	return cmd
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:   "request",
		Short: "Manage information requests",
	}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestResolveCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var title, desc, priority, requester string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an information request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if requester == "" {
					requester = viper.GetString("actor-id")
				}
				r, err := e.CreateRequest(ctx, engine.CreateRequestOptions{
					ProjectID:   e.Config.Project.ID,
					Requester:   requester,
					Title:       title,
					Description: desc,
					Priority:    priority,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "request title")
	cmd.Flags().StringVar(&desc, "description", "", "what is needed and why")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&requester, "requester", "", "originating team member (defaults to actor)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func requestListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List information requests in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var filtered []domain.InformationRequest
				var err error
				if strings.EqualFold(status, domain.RequestOpen) {
					filtered, err = e.Repo.ListOpenRequests(ctx, e.Config.Project.ID)
				} else {
					var items []domain.InformationRequest
					items, err = e.Repo.ListRequests(ctx, e.Config.Project.ID)
					for _, r := range items {
						if status != "" && r.Status != strings.ToUpper(status) {
							continue
						}
						filtered = append(filtered, r)
					}
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(filtered)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Requester"})
				for _, r := range filtered {
					tw.AppendRow(table.Row{r.ID, r.Title, r.Priority, r.Status, r.Requester})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, resolved)")
	return cmd
}

func requestResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <request-id>",
		Short: "Resolve an information request by id",
		Long:  "The id must be one issued by the store; list current ids with 'swb request list'. Free-text titles are rejected.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.ResolveRequest(ctx, e.Config.Project.ID, args[0], resolution, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution text")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}

func readyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Mark the project ready for working",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.MarkReady(ctx, e.Config.Project.ID, viper.GetString("actor-id"))
				if err != nil {
					var ee *engine.Error
					if errors.As(err, &ee) && ee.Kind == engine.KindNotReady {
						fmt.Println("Not ready yet:")
						for _, m := range ee.Missing {
							fmt.Printf("  - %s\n", m)
						}
					}
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the project snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.ProjectInfo(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				if snap.Project == nil {
					fmt.Println("No brief yet. Create one with 'swb brief --name <name>'.")
					return nil
				}
				fmt.Printf("Project: %s (%s)\n", snap.Project.Name, snap.Project.Readiness)
				if snap.Project.Description != "" {
					fmt.Println(snap.Project.Description)
				}
				for _, g := range snap.Goals {
					fmt.Printf("Goal %d: %s\n", g.Position+1, g.Text)
					for _, c := range g.Criteria {
						mark := " "
						if c.Completed {
							mark = "x"
						}
						fmt.Printf("  [%s] %s (%s)\n", mark, c.Description, c.ID)
					}
				}
				fmt.Printf("Open information requests: %d\n", snap.OpenRequests)
				for _, r := range snap.Requests {
					if r.Status == domain.RequestOpen {
						fmt.Printf("  %s [%s] %s\n", r.ID, r.Priority, r.Title)
					}
				}
				return nil
			})
		},
	}
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Recommend the coordinator's next step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.ProjectInfo(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				s := advisor.Suggest(snap)
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Next: %s\n%s\n", s.Action, s.Reason)
				if s.RequestID != "" {
					fmt.Printf("Request id: %s\n", s.RequestID)
				}
				return nil
			})
		},
	}
}

func detectCmd() *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "detect <message>",
		Short: "Classify a team message as a potential information request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := detector.New(e.Config.Detector)
				if err != nil {
					return err
				}
				res := d.Detect(ctx, nil, args[0])
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.IsRequest {
					fmt.Printf("Not an information request: %s\n", res.Reason)
					return nil
				}
				fmt.Printf("Information request detected (confidence %.2f)\n", res.Confidence)
				fmt.Printf("  Title: %s\n  Priority: %s\n  Reason: %s\n", res.Title, res.Priority, res.Reason)
				if sender != "" {
					fmt.Printf("Create it with: swb request create --title %q --description %q --priority %s --requester %s\n",
						res.Title, res.Description, res.Priority, sender)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "team member who sent the message")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Project.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP surface"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "swb_" + hex.EncodeToString(raw)
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, k); err != nil {
					return err
				}
				fmt.Printf("API key created for %s: %s\n", actor, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), workspace, viper.GetString("project"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, nil)
			d, err := detector.New(cfg.Detector)
			if err != nil {
				return err
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("SWB_JWT_SECRET"); env != "" {
				secret = env
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				Detector: d,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Using database %s\n", db.Path(workspace))
			fmt.Printf("Serving workbench API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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
	_, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, nil)
	return fn(ctx, e)
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
