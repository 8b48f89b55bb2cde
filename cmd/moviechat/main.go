package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"moviechat/internal/api"
	"moviechat/internal/auth"
	"moviechat/internal/config"
	"moviechat/internal/conversation"
	"moviechat/internal/logging"
	"moviechat/internal/session"
	"moviechat/internal/settings"
	"moviechat/internal/store"
)

var (
	// Global flags
	configPath string
	apiURL     string
	debug      bool

	cfg config.Config

	// Wired stores, built in PersistentPreRunE
	authStore *auth.Store
	registry  *session.Registry
	pipeline  *conversation.Pipeline
	prefs     *settings.Store
	archive   *store.LocalStore
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "moviechat",
	Short: "moviechat - AI movie recommendations in your terminal",
	Long: `moviechat is a terminal client for the movie-finder recommendation
service. Sign in, pick or start a conversation session, and chat with the
recommendation engine.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
		if apiURL != "" {
			cfg.APIBaseURL = apiURL
		}
		if debug {
			cfg.Debug = true
		}

		if err := logging.Initialize(cfg.Debug, cfg.DataDir); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		authStore, registry, pipeline, prefs, archive = wireStores(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if archive != nil {
			_ = archive.Close()
		}
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat(cfg, authStore, registry, pipeline, prefs, archive)
	},
}

// loginCmd signs in from the command line
var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in and store the access token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := promptCredentials(args)
		if err != nil {
			return err
		}

		id, err := authStore.LogIn(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Printf("Signed in as %s\n", id.Username)
		return nil
	},
}

// signupCmd creates an account from the command line
var signupCmd = &cobra.Command{
	Use:   "signup [email]",
	Short: "Create a new account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := promptCredentials(args)
		if err != nil {
			return err
		}

		if err := authStore.SignUp(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("signup failed: %w", err)
		}
		fmt.Println("Account created. Run 'moviechat login' to sign in.")
		return nil
	},
}

// logoutCmd clears the stored credential
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and discard the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		authStore.LogOut()
		fmt.Println("Signed out.")
		return nil
	},
}

// statusCmd prints the current session state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the stored credential is still valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := authStore.VerifySession(cmd.Context())
		if err != nil {
			return fmt.Errorf("session invalid: %w", err)
		}
		if !id.Authenticated {
			fmt.Println("Not signed in.")
			return nil
		}
		fmt.Printf("Signed in as %s (active=%v, verified=%v, api_key=%v)\n",
			id.Username, id.Active, id.EmailVerified, id.HasAPIKey)
		return nil
	},
}

// sessionsCmd lists conversation sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your conversation sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := authStore.VerifySession(cmd.Context()); err != nil {
			return fmt.Errorf("session invalid: %w", err)
		}
		list, err := registry.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No sessions yet.")
			return nil
		}
		for _, s := range list {
			fmt.Printf("%-12s  %-40s  %s\n", s.ID, s.Title, s.StartedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// wireStores builds the store graph. Logout hooks make a logout atomic
// across all dependent stores.
func wireStores(cfg config.Config) (*auth.Store, *session.Registry, *conversation.Pipeline, *settings.Store, *store.LocalStore) {
	client := api.New(cfg.APIBaseURL, cfg.Timeout())
	creds := auth.NewCredentialStore(cfg.DataDir)
	authStore := auth.NewStore(client, creds)

	archive, err := store.NewLocalStore(filepath.Join(cfg.DataDir, "archive.db"))
	if err != nil {
		// The archive is a supplement; chat works without it.
		archive = nil
	}
	var archiver conversation.Archiver
	if archive != nil {
		archiver = archive
	}

	registry := session.NewRegistry(client, authStore)
	pipeline := conversation.NewPipeline(client, authStore, archiver)
	prefs := settings.NewStore()

	authStore.OnLogout(registry.Clear)
	authStore.OnLogout(pipeline.Clear)
	authStore.OnLogout(prefs.Clear)

	return authStore, registry, pipeline, prefs, archive
}

// promptCredentials reads email and password, hiding the password when
// stdin is a terminal.
func promptCredentials(args []string) (string, string, error) {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", fmt.Errorf("email is required")
	}

	fmt.Print("Password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", "", err
		}
		return email, string(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	return email, strings.TrimSpace(line), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, statusCmd, sessionsCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
