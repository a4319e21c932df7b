// mensa - drive agent queries against a workspace from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
	"github.com/FujiwaraChoki/mensa-sub000/bridge"
	"github.com/FujiwaraChoki/mensa-sub000/config"
	"github.com/FujiwaraChoki/mensa-sub000/dispatch"
	"github.com/FujiwaraChoki/mensa-sub000/history"
	"github.com/FujiwaraChoki/mensa-sub000/internal/logging"
	"github.com/FujiwaraChoki/mensa-sub000/session"
)

var (
	workspaceFlag string
	configFlag    string
	debugFlag     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mensa",
	Short: "Run agent queries against a workspace",
	Long: `mensa - drive agent queries against a workspace from the command line.

Queries run through the Node bridge script that wraps the agent SDK.
Transcripts persisted by the agent host can be listed and replayed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "",
		"Workspace directory (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "",
		"Config file (default: ~/.mensa/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"Enable debug logging")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(showCmd)
}

func workspace() (string, error) {
	if workspaceFlag != "" {
		return workspaceFlag, nil
	}
	return os.Getwd()
}

func loadConfig() (*config.App, error) {
	path := configFlag
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

var (
	permissionModeFlag string
	maxTurnsFlag       int
	resumeFlag         string
)

// queryCmd: mensa query <prompt>
var queryCmd = &cobra.Command{
	Use:   "query <prompt>",
	Short: "Run one query and stream its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace()
		if err != nil {
			return err
		}
		app, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logging.New(debugFlag)
		if err != nil {
			return err
		}
		defer log.Sync()

		qc := app.NewQueryConfig()
		if permissionModeFlag != "" {
			qc.PermissionMode = permissionModeFlag
		}
		if maxTurnsFlag > 0 {
			qc.MaxTurns = maxTurnsFlag
		}
		configJSON, err := qc.Encode()
		if err != nil {
			return err
		}

		transport := bridge.New(bridge.Config{
			NodeBinary: app.NodeBinary,
			ScriptPath: app.BridgeScript,
			Log:        log,
		})
		dispatcher := dispatch.New(transport, dispatch.WithLogger(log))

		registry := session.NewRegistry()
		sess := registry.Create()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Events queue here until the session is bound to the query id.
		events := make(chan agentwire.Event, 256)
		handle, err := dispatcher.Start(ctx, dispatch.StartRequest{
			Workspace:   ws,
			Prompt:      args[0],
			ConfigJSON:  configJSON,
			ResumeID:    resumeFlag,
			Correlation: registry.Correlation(sess.ID),
		}, func(ev agentwire.Event) {
			events <- ev
		})
		if err != nil {
			return err
		}
		registry.BindQuery(sess.ID, handle.ID, handle.Cancel)

		interrupted := ctx.Done()
	stream:
		for {
			select {
			case <-interrupted:
				interrupted = nil
				log.Info("interrupted, cancelling query", zap.String("query_id", handle.ID))
				// Cancel returns immediately; keep draining until the
				// synthesized done event arrives.
				handle.Cancel()
			case ev := <-events:
				registry.Apply(ev)
				render(ev)
				if ev.Type == agentwire.EventDone {
					break stream
				}
			}
		}

		if sess.Status == session.StatusError {
			return fmt.Errorf("query failed: %s", sess.Error)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&permissionModeFlag, "permission-mode", "",
		"Permission mode for this query (default, acceptEdits, plan, bypassPermissions)")
	queryCmd.Flags().IntVar(&maxTurnsFlag, "max-turns", 0,
		"Maximum agent turns for this query")
	queryCmd.Flags().StringVar(&resumeFlag, "resume", "",
		"Resume an existing host conversation by id")
}

func render(ev agentwire.Event) {
	switch ev.Type {
	case agentwire.EventText:
		fmt.Print(ev.Content)
	case agentwire.EventToolUse:
		fmt.Printf("\n[%s]", ev.Tool.Name)
		if len(ev.Tool.Input) > 0 {
			if data, err := json.Marshal(ev.Tool.Input); err == nil {
				fmt.Printf(" %s", data)
			}
		}
		fmt.Println()
	case agentwire.EventToolResult:
		if ev.Tool.IsError {
			fmt.Printf("[%s failed] %s\n", ev.Tool.Name, ev.Tool.Result)
		}
	case agentwire.EventSystemInit:
		if ev.SessionID != "" {
			fmt.Printf("session: %s\n", ev.SessionID)
		}
	case agentwire.EventExitPlanMode:
		fmt.Printf("\n--- proposed plan ---\n%s\n", ev.PlanContent)
	case agentwire.EventAskUserQuestion:
		for _, q := range ev.Questions {
			fmt.Printf("\n? %s\n", q.Question)
			for _, opt := range q.Options {
				fmt.Printf("  - %s\n", opt)
			}
		}
	case agentwire.EventError:
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", ev.Err)
	case agentwire.EventCancelled:
		if ev.Reason != "" {
			fmt.Fprintf(os.Stderr, "\ncancelled (%s)\n", ev.Reason)
		} else {
			fmt.Fprintln(os.Stderr, "\ncancelled")
		}
	case agentwire.EventDone:
		fmt.Println()
	}
}

// sessionsCmd: mensa sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted sessions for the workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace()
		if err != nil {
			return err
		}
		entries, err := history.ListSessions(ws)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, e := range entries {
			prompt := e.FirstPrompt
			if len(prompt) > 60 {
				prompt = prompt[:57] + "..."
			}
			fmt.Printf("%s  %s  (%d messages)\n  %s\n", e.SessionID, e.Modified, e.MessageCount, prompt)
		}
		return nil
	},
}

// showCmd: mensa show <session-id>
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print one persisted transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace()
		if err != nil {
			return err
		}
		tr, err := history.LoadMessages(ws, args[0])
		if err != nil {
			return err
		}
		if len(tr.Messages) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, msg := range tr.Messages {
			fmt.Printf("--- %s ---\n", msg.Role)
			for _, block := range msg.Blocks {
				switch block.Type {
				case session.BlockText:
					fmt.Println(block.Content)
				case session.BlockTool:
					if exec := tr.ToolByID(block.ToolID); exec != nil {
						fmt.Printf("[%s %s]\n", exec.Tool, exec.Status)
					}
				case session.BlockImage:
					fmt.Printf("[image %s]\n", block.MediaType)
				}
			}
			fmt.Println()
		}
		return nil
	},
}
