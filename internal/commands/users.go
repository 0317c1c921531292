package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/screener-back/pkg/models"
)

var (
	userEmail    string
	userPassword string
	userChatID   int64
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with its profile",
	Long: `Create a user and its profile in one transaction.

Examples:
  screener-back users create --email trader@example.com --password s3cretpass --telegram-chat-id 123456`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		in := models.NewUser{Email: userEmail, Password: userPassword}
		if cmd.Flags().Changed("telegram-chat-id") {
			in.TelegramChatID = &userChatID
		}

		user, _, err := application.NewUserService().Create(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Created user %d (%s)\n", user.ID, user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersCreateCmd)

	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (8 to 72 characters)")
	usersCreateCmd.Flags().Int64Var(&userChatID, "telegram-chat-id", 0, "Telegram chat id for alerts")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("password")
}
