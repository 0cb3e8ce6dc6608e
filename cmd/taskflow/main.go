package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/app"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/session"
	appsync "github.com/nhle/taskflow/internal/sync"
)

// commandTimeout bounds the network work of a non-interactive subcommand.
const commandTimeout = 30 * time.Second

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:           "taskflow",
	Short:         "taskflow - collaborative boards in the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List the boards you belong to",
	RunE:  runBoards,
}

var (
	emailFlag    string
	registerFlag bool
	nameFlag     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", model.DefaultConfigPath(), "path to the config file")
	loginCmd.Flags().StringVarP(&emailFlag, "email", "e", "", "account email")
	loginCmd.Flags().BoolVar(&registerFlag, "register", false, "create the account first")
	loginCmd.Flags().StringVar(&nameFlag, "name", "", "display name when registering")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, boardsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(configFlag, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	lc := app.NewLifecycle(svc.channel, svc.boards, svc.notes, svc.session, svc.logger.WithPrefix("app"))
	defer lc.Stop()
	svc.session.OnChange(lc.Listener())

	bridge := appsync.New(svc.session, svc.boards, svc.notes, svc.channel,
		appsync.WithInterval(svc.cfg.Session.CheckInterval),
		appsync.WithLogger(svc.logger.WithPrefix("sync")),
	)
	defer bridge.Stop()

	root := app.New(app.Deps{
		Session:  svc.session,
		Boards:   svc.boards,
		Notes:    svc.notes,
		Bridge:   bridge,
		Realtime: svc.channel,
		Logger:   svc.logger.WithPrefix("app"),
	})

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(configFlag, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	email, password, name := emailFlag, "", nameFlag
	fields := []huh.Field{
		huh.NewInput().Title("Email").Value(&email).Validate(notBlank("email")),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password).Validate(notBlank("password")),
	}
	if registerFlag {
		fields = append([]huh.Field{huh.NewInput().Title("Name").Value(&name).Validate(notBlank("name"))}, fields...)
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	if registerFlag {
		err = svc.session.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	} else {
		err = svc.session.Login(ctx, strings.TrimSpace(email), password)
	}
	if err != nil {
		return fmt.Errorf("signing in: %s", api.Message(err))
	}

	user, _ := svc.session.User()
	fmt.Fprintf(stdout, "Signed in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(configFlag, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	if err := svc.session.Logout(ctx, session.ReasonLogout); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(configFlag, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	user, err := restore(cmd.Context(), svc)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s <%s>\nsession expires %s\n",
		user.Name, user.Email, svc.session.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

func runBoards(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(configFlag, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	user, err := restore(cmd.Context(), svc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	if err := svc.boards.LoadBoards(ctx); err != nil {
		if api.IsUnauthorized(err) {
			_ = svc.session.Logout(ctx, session.ReasonUnauthorized)
			return errors.New("the server rejected the stored session; run 'taskflow login'")
		}
		return fmt.Errorf("listing boards: %s", api.Message(err))
	}

	boards := svc.boards.Snapshot().Boards
	if len(boards) == 0 {
		fmt.Fprintln(stdout, "No boards yet.")
		return nil
	}

	t := table.New().Headers("ID", "NAME", "ROLE", "LISTS", "MEMBERS")
	for _, b := range boards {
		t.Row(b.ID, b.Name, string(b.RoleOf(user.ID)),
			fmt.Sprint(len(b.Lists)), fmt.Sprint(len(b.Members)))
	}
	fmt.Fprintln(stdout, t.Render())
	return nil
}

// restore rehydrates the stored session and returns its user, or an
// error telling the user to sign in.
func restore(ctx context.Context, svc *services) (model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := svc.session.Rehydrate(ctx); err != nil {
		return model.User{}, err
	}
	user, err := svc.session.User()
	if err != nil {
		return model.User{}, errors.New("not signed in; run 'taskflow login'")
	}
	return user, nil
}

func notBlank(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
