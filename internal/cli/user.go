package cli

import (
	"fmt"

	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Long: `Create a user account with a global role.

Examples:
  taskboard user create --email lead@example.com --name "Team Lead" --password s3cretpass --role manager`,
	Args: cobra.NoArgs,
	RunE: runUserCreate,
}

var (
	userEmail    string
	userName     string
	userPassword string
	userRole     string
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Login email")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Initial password (min 8 characters)")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(models.RoleMember), "Global role (admin, manager, member)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	pool, err := openDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer pool.Close()

	users := services.NewUserService(pool.DB, cfg.Auth.BCryptCost, logger)
	user, err := users.Create(cmd.Context(), services.CreateUserInput{
		Email:    userEmail,
		Name:     userName,
		Password: userPassword,
		Role:     userRole,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
