package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iklobato/lightapi"
	"github.com/iklobato/lightapi/adapters/auth"
	"github.com/iklobato/lightapi/adapters/clock"
	"github.com/iklobato/lightapi/adapters/hasher"
	"github.com/iklobato/lightapi/config"
	"github.com/iklobato/lightapi/ports"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
	Long: `Manage the accounts used by the auth gate.

Accounts live in the same backing store as the served resources. When auth is
enabled, every generated endpoint requires a bearer token obtained by logging
in with one of these accounts.

Examples:
  lightapi users list
  lightapi users create --username=alice --password=s3cret`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE:  runUsersList,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE:  runUsersCreate,
}

var (
	userName     string
	userPassword string
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)

	usersCreateCmd.Flags().StringVar(&userName, "username", "", "account username (required)")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "account password (required)")
	usersCreateCmd.MarkFlagRequired("username")
	usersCreateCmd.MarkFlagRequired("password")
}

func openUserStore() (*config.Config, ports.Storage, error) {
	var cfg *config.Config
	if _, err := os.Stat(cfgFile); err == nil {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cfg = config.FromEnv()
	}
	store, err := lightapi.OpenStorage(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	_, store, err := openUserStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	users := auth.UserDescriptor()
	if err := store.Bind(ctx, users); err != nil {
		return err
	}
	recs, err := store.List(ctx, users)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No accounts found.")
		fmt.Println()
		fmt.Println("Create one with: lightapi users create --username=alice --password=...")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME")
	fmt.Fprintln(w, "--\t--------")
	for _, rec := range recs {
		fmt.Fprintf(w, "%v\t%v\n", rec["id"], rec["username"])
	}
	w.Flush()
	return nil
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	cfg, store, err := openUserStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	tokens, err := auth.NewTokenService(ctx, cfg.Auth.JWTSecret, cfg.Auth.Expiration, store, clock.Real{})
	if err != nil {
		return err
	}
	creds, err := auth.NewCredentials(ctx, store, hasher.NewBcrypt(0), tokens)
	if err != nil {
		return err
	}
	rec, err := creds.Register(ctx, userName, userPassword)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	fmt.Printf("Created account %v (id %v)\n", rec["username"], rec["id"])
	return nil
}
