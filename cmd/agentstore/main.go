package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/auth"
	"github.com/MarcoPoloResearchLab/agentstore/internal/catalog"
	"github.com/MarcoPoloResearchLab/agentstore/internal/config"
	"github.com/MarcoPoloResearchLab/agentstore/internal/engagement"
	"github.com/MarcoPoloResearchLab/agentstore/internal/identity"
	"github.com/MarcoPoloResearchLab/agentstore/internal/logging"
	"github.com/MarcoPoloResearchLab/agentstore/internal/records"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "agentstore",
		Short:        "Browse the agent directory, upvote and comment",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newAgentsCommand(),
		newShowCommand(),
		newUpvoteCommand(),
		newCommentCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Agentstore API base URL")
	cmd.PersistentFlags().String("session-token", "", "Session token (overrides env)")
	cmd.PersistentFlags().Duration("remote-timeout", defaults.GetDuration("remote.timeout"), "Timeout applied to every remote call")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "session.token", "session-token")
	bindFlag(cmd, "remote.timeout", "remote-timeout")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func newAgentsCommand() *cobra.Command {
	var (
		tags  []string
		query string
	)
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List directory agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printAgents(cmd.OutOrStdout(), catalog.Filter(tags, query))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Only agents carrying every tag")
	cmd.Flags().StringVar(&query, "search", "", "Match name or description")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Show an agent with its upvotes and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBinding(cmd, args[0], func(ctx context.Context, agent catalog.Agent, controller *engagement.Controller) error {
				printAgent(cmd.OutOrStdout(), agent, controller.Snapshot())
				return nil
			})
		},
	}
}

func newUpvoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upvote <slug>",
		Short: "Toggle your upvote on an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBinding(cmd, args[0], func(ctx context.Context, agent catalog.Agent, controller *engagement.Controller) error {
				votes, err := controller.ToggleVote(ctx)
				if err != nil {
					return describe(err)
				}
				state := "removed"
				if votes.ViewerHasVoted {
					state = "added"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "upvote %s: %s now has %d\n", state, agent.Name, votes.Count)
				return nil
			})
		},
	}
}

func newCommentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <slug> <text...>",
		Short: "Post a comment on an agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.Join(args[1:], " ")
			return withBinding(cmd, args[0], func(ctx context.Context, agent catalog.Agent, controller *engagement.Controller) error {
				comment, err := controller.SubmitComment(ctx, body)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "comment %s posted on %s\n", comment.ID, agent.Name)
				return nil
			})
		},
	}
}

// withBinding resolves the agent, signs in from the configured token and binds
// an engagement controller before running fn.
func withBinding(cmd *cobra.Command, slug string, fn func(context.Context, catalog.Agent, *engagement.Controller) error) error {
	agent, ok := catalog.Find(slug)
	if !ok {
		return fmt.Errorf("unknown agent %q", slug)
	}
	clientConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewConsoleLogger(clientConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	session, err := identity.NewSession(identity.SessionConfig{
		Validator: auth.NewClaimsReader(time.Now),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if clientConfig.SessionToken != "" {
		if _, err := session.SignInWithToken(clientConfig.SessionToken); err != nil {
			return fmt.Errorf("session token rejected: %w", err)
		}
	}

	store, err := records.NewHTTPStore(records.HTTPStoreConfig{
		BaseURL:      clientConfig.APIBaseURL,
		SessionToken: clientConfig.SessionToken,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	controller, err := engagement.NewController(engagement.ControllerConfig{
		Records:       store,
		Logger:        logger,
		RemoteTimeout: clientConfig.RemoteTimeout,
	})
	if err != nil {
		return err
	}

	itemID, err := engagement.NewItemID(agent.Slug)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if _, err := controller.Bind(ctx, itemID, session.CurrentViewer()); err != nil {
		return err
	}
	defer controller.Unbind()
	logger.Debug("engagement bound", zap.String("item_id", itemID.String()), zap.Stringer("viewer", session.CurrentViewer()))
	return fn(ctx, agent, controller)
}

func describe(err error) error {
	switch {
	case errors.Is(err, engagement.ErrSignInRequired):
		return errors.New("sign in required: pass --session-token or set AGENTSTORE_SESSION_TOKEN")
	case errors.Is(err, engagement.ErrValidation):
		return fmt.Errorf("rejected: %w", err)
	default:
		return err
	}
}

func printAgents(out io.Writer, agents []catalog.Agent) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "SLUG\tNAME\tSTARS\tTAGS")
	for _, agent := range agents {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", agent.Slug, agent.Name, agent.Stars, strings.Join(agent.Tags, ", "))
	}
	_ = writer.Flush()
}

func printAgent(out io.Writer, agent catalog.Agent, snapshot engagement.Snapshot) {
	deploy := agent.Deploy()
	fmt.Fprintf(out, "%s by %s\n", agent.Name, agent.Author)
	fmt.Fprintf(out, "%s\n\n", agent.Description)
	fmt.Fprintf(out, "tags:     %s\n", strings.Join(agent.Tags, ", "))
	fmt.Fprintf(out, "stars:    %d (updated %s)\n", agent.Stars, agent.LastUpdated.Format(time.DateOnly))
	fmt.Fprintf(out, "github:   %s\n", agent.GitHub)
	fmt.Fprintf(out, "replit:   %s\n", deploy.Replit)
	fmt.Fprintf(out, "hf space: %s\n", deploy.HuggingFace)

	marker := ""
	if snapshot.Votes.ViewerHasVoted {
		marker = " (including yours)"
	}
	fmt.Fprintf(out, "\nupvotes:  %d%s\n", snapshot.Votes.Count, marker)
	fmt.Fprintf(out, "comments: %d\n", len(snapshot.Comments.Comments))
	for _, comment := range snapshot.Comments.Comments {
		fmt.Fprintf(out, "  [%s] %s: %s\n", comment.CreatedAt.Local().Format(time.DateTime), comment.AuthorName, comment.Body)
	}
}
