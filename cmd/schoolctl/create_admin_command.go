package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	"github.com/noah-isme/music-school-api/internal/service"
)

type adminInput struct {
	username  string
	email     string
	firstName string
	lastName  string
}

func newCreateAdminCommand(ctx *commandContext) *cobra.Command {
	var in adminInput

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long:  "Create an administrator account. Missing fields are prompted for; the password is always read without echo.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var err error
			if in.username, err = promptIfEmpty(reader, out, "Username", in.username); err != nil {
				return err
			}
			if in.email, err = promptIfEmpty(reader, out, "Email", in.email); err != nil {
				return err
			}
			if in.firstName, err = promptIfEmpty(reader, out, "First name", in.firstName); err != nil {
				return err
			}
			password, err := readPassword(reader, out)
			if err != nil {
				return err
			}

			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			users := service.NewUserService(repository.NewUserRepository(db), validator.New(), ctx.log())
			user, err := users.Create(cmd.Context(), models.CreateUserRequest{
				Username:  in.username,
				Email:     in.email,
				Password:  password,
				FirstName: in.firstName,
				LastName:  in.lastName,
				Role:      models.RoleAdmin,
			}, "", models.RequestMeta{UserAgent: "schoolctl"})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Admin %q (%s) created with ID %s\n", user.Username, user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.username, "username", "", "Login name")
	cmd.Flags().StringVar(&in.email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.lastName, "last-name", "", "Last name")

	return cmd
}

func promptIfEmpty(reader *bufio.Reader, out io.Writer, label, current string) (string, error) {
	if strings.TrimSpace(current) != "" {
		return strings.TrimSpace(current), nil
	}
	fmt.Fprintf(out, "%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return value, nil
}

// readPassword reads without echo on a terminal and falls back to a plain
// line when stdin is piped.
func readPassword(reader *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
