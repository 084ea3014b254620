package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/metorial/bluefox"
	"github.com/metorial/bluefox/internal/cli"
	"github.com/metorial/bluefox/internal/discovery"
	"github.com/metorial/bluefox/internal/events"
	"github.com/metorial/bluefox/internal/inventory"
	"github.com/metorial/bluefox/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg        cli.Config
	outputJSON bool
	natsURL    string
	dbPath     string

	logger    *zap.Logger
	publisher *events.Publisher
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bluefoxctl",
	Short: "CLI for the BlueFox game server panel",
	Long: `bluefoxctl is a command-line interface for the BlueFox panel API.

It lists and inspects servers, sends power signals and console commands,
and can record server snapshots into a local SQLite inventory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = cli.NewLogger(cfg.Verbose)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		// A failed run skips PersistentPostRun.
		publisher.Close()
		publisher = nil
		if natsURL != "" {
			publisher, err = events.NewPublisher(natsURL, logger)
			if err != nil {
				logger.Warn("event publishing disabled", zap.Error(err))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		publisher.Close()
		publisher = nil
		if logger != nil {
			logger.Sync()
		}
	},
}

func newClient() (*bluefox.Client, error) {
	return cli.NewClient(cfg, logger)
}

// fetchServer loads a server for the mutating commands.
func fetchServer(ctx context.Context, id string) (*bluefox.Server, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return client.GetServer(ctx, id)
}

func publish(ctx context.Context, ev models.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, events.DefaultSubject, ev); err != nil {
		logger.Warn("publish event failed", zap.String("event", ev.Event), zap.Error(err))
	}
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the account that owns the API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		account, err := client.Me(cmd.Context())
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(cmd.OutOrStdout(), account)
		}
		return cli.FormatAccount(cmd.OutOrStdout(), account)
	},
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage and query servers",
}

var listServersCmd = &cobra.Command{
	Use:   "list",
	Short: "List all servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		servers, err := client.ListServers(cmd.Context())
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(cmd.OutOrStdout(), servers)
		}
		return cli.FormatServersTable(cmd.OutOrStdout(), servers)
	},
}

var getServerCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get detailed information about a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := fetchServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(cmd.OutOrStdout(), server)
		}
		return cli.FormatServerDetail(cmd.OutOrStdout(), server)
	},
}

var existsServerCmd = &cobra.Command{
	Use:   "exists [id]",
	Short: "Check whether a server is visible to the token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ok, err := client.HasServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(cmd.OutOrStdout(), map[string]interface{}{"id": args[0], "exists": ok})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		if !ok {
			return fmt.Errorf("server %s not found", args[0])
		}
		return nil
	},
}

var powerServerCmd = &cobra.Command{
	Use:       "power [id] [start|stop|restart|kill]",
	Short:     "Send a power signal to a server",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"start", "stop", "restart", "kill"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := bluefox.PowerAction(args[1])
		if !action.Valid() {
			return fmt.Errorf("%w: unknown power action %q", bluefox.ErrInvalidArgument, args[1])
		}

		server, err := fetchServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := server.Power(cmd.Context(), action); err != nil {
			return err
		}

		publish(cmd.Context(), models.Event{Event: "server.power", Server: server.ID, Action: string(action)})
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", action, server)
		return nil
	},
}

var renameServerCmd = &cobra.Command{
	Use:   "rename [id] [name]",
	Short: "Rename a server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := fetchServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := server.SetName(cmd.Context(), args[1]); err != nil {
			return err
		}

		publish(cmd.Context(), models.Event{Event: "server.rename", Server: server.ID, Detail: args[1]})
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", server, args[1])
		return nil
	},
}

var reinstallServerCmd = &cobra.Command{
	Use:   "reinstall [id]",
	Short: "Reinstall a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := fetchServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := server.Reinstall(cmd.Context()); err != nil {
			return err
		}

		publish(cmd.Context(), models.Event{Event: "server.reinstall", Server: server.ID})
		fmt.Fprintf(cmd.OutOrStdout(), "Reinstalling %s\n", server)
		return nil
	},
}

var deleteServerCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a server through the application API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		server, err := fetchServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := server.Delete(cmd.Context(), force); err != nil {
			return err
		}

		publish(cmd.Context(), models.Event{Event: "server.delete", Server: server.ID, Detail: fmt.Sprintf("force=%t", force)})
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", server)
		return nil
	},
}

var sendServerCmd = &cobra.Command{
	Use:   "send [id] [command...]",
	Short: "Send a console command to a server",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args[1:], " ")

		server, err := fetchServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := server.Send(cmd.Context(), command); err != nil {
			return err
		}

		publish(cmd.Context(), models.Event{Event: "server.command", Server: server.ID, Detail: command})
		return nil
	},
}

func openInventory() (*inventory.DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("an inventory database is required (--db or BLUEFOX_DB)")
	}
	return inventory.NewDB(dbPath)
}

var snapshotServersCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record the current server list into the inventory database",
	RunE: func(cmd *cobra.Command, args []string) error {
		retention, _ := cmd.Flags().GetDuration("retention")

		db, err := openInventory()
		if err != nil {
			return err
		}
		defer db.Close()

		client, err := newClient()
		if err != nil {
			return err
		}
		servers, err := client.ListServers(cmd.Context())
		if err != nil {
			return err
		}

		n, err := db.RecordServers(servers, time.Now())
		if err != nil {
			return err
		}
		if retention > 0 {
			pruned, err := db.Prune(retention)
			if err != nil {
				return fmt.Errorf("prune snapshots: %w", err)
			}
			logger.Debug("pruned snapshots", zap.Int64("count", pruned))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d servers\n", n)
		return nil
	},
}

var historyServerCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show recorded snapshots, for one server or the latest of every server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := openInventory()
		if err != nil {
			return err
		}
		defer db.Close()

		var snapshots []models.Snapshot
		if len(args) == 1 {
			snapshots, err = db.History(args[0], limit)
		} else {
			snapshots, err = db.Latest()
		}
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(cmd.OutOrStdout(), snapshots)
		}
		return cli.FormatHistoryTable(cmd.OutOrStdout(), snapshots)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfg.Token, "token", "t", getEnv("BLUEFOX_TOKEN", ""), "Panel API token")
	rootCmd.PersistentFlags().StringVarP(&cfg.BaseURL, "url", "u", getEnv("BLUEFOX_URL", ""), "Panel API base URL")
	rootCmd.PersistentFlags().StringVar(&cfg.ConsulAddr, "consul", getEnv("CONSUL_HTTP_ADDR", ""), "Consul address used to discover the panel when --url is unset")
	rootCmd.PersistentFlags().StringVar(&cfg.ConsulService, "consul-service", discovery.DefaultService, "Consul service name of the panel")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats", getEnv("NATS_URL", ""), "NATS URL for publishing action events")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnv("BLUEFOX_DB", ""), "Inventory SQLite database path")

	deleteServerCmd.Flags().Bool("force", false, "Use the plain delete endpoint instead of /force")
	snapshotServersCmd.Flags().Duration("retention", 0, "Remove snapshots older than this after recording (0 keeps everything)")
	historyServerCmd.Flags().IntP("limit", "l", 20, "Number of snapshots to show")

	serversCmd.AddCommand(listServersCmd)
	serversCmd.AddCommand(getServerCmd)
	serversCmd.AddCommand(existsServerCmd)
	serversCmd.AddCommand(powerServerCmd)
	serversCmd.AddCommand(renameServerCmd)
	serversCmd.AddCommand(reinstallServerCmd)
	serversCmd.AddCommand(deleteServerCmd)
	serversCmd.AddCommand(sendServerCmd)
	serversCmd.AddCommand(snapshotServersCmd)
	serversCmd.AddCommand(historyServerCmd)

	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(serversCmd)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
