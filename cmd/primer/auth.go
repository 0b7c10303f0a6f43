package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/primer/internal/profile"
)

// interactive reports whether prompts may be shown. Tests replace it.
var interactive = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// promptCredentials fills in a missing email or password with a form, or
// fails when prompting is not possible.
func promptCredentials(ctx context.Context, email, password *string) error {
	if *email != "" && *password != "" {
		return nil
	}
	if !interactive() {
		return errors.New("--email and --password are required when stdin is not a terminal")
	}
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(email).Validate(huh.ValidateNotEmpty()),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password).Validate(huh.ValidateNotEmpty()),
	)).RunWithContext(ctx)
}

func selectOptions(f profile.Field) []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("Skip", "")}
	for _, v := range profile.Options(f) {
		opts = append(opts, huh.NewOption(profile.Label(v), v))
	}
	return opts
}

// --- signin ---

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in to the textbook backend",
	Long: `Sign in to the textbook backend. Your saved learning preferences are
loaded from the server after a successful sign-in.

Examples:
  primer signin
  primer signin --email ada@example.com --password ...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if err := promptCredentials(cmd.Context(), &email, &password); err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			user, err := a.profile.SignIn(ctx, email, password)
			if err != nil {
				return err
			}
			printSuccess("Signed in as %s", user.Name())
			fmt.Fprintln(cmd.OutOrStdout(), a.profile.Summary())
			return nil
		})
	},
}

func init() {
	signinCmd.Flags().String("email", "", "account email")
	signinCmd.Flags().String("password", "", "account password")
}

// --- signup ---

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account. Persona, skill level and pace are optional; when given
they are saved locally and uploaded to your new profile.

Examples:
  primer signup
  primer signup --email ada@example.com --password ... --persona student --skill-level beginner`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		var d profile.SignUpDetails
		d.FullName, _ = cmd.Flags().GetString("name")
		persona, _ := cmd.Flags().GetString("persona")
		skill, _ := cmd.Flags().GetString("skill-level")
		pace, _ := cmd.Flags().GetString("pace")

		if email == "" || password == "" {
			if !interactive() {
				return errors.New("--email and --password are required when stdin is not a terminal")
			}
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().Title("Email").Value(&email).Validate(huh.ValidateNotEmpty()),
					huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password).Validate(huh.ValidateNotEmpty()),
					huh.NewInput().Title("Full name (optional)").Value(&d.FullName),
				),
				huh.NewGroup(
					huh.NewSelect[string]().Title(profile.FieldPersona.Title()).Options(selectOptions(profile.FieldPersona)...).Value(&persona),
					huh.NewSelect[string]().Title(profile.FieldSkillLevel.Title()).Options(selectOptions(profile.FieldSkillLevel)...).Value(&skill),
					huh.NewSelect[string]().Title(profile.FieldLearningPace.Title()).Options(selectOptions(profile.FieldLearningPace)...).Value(&pace),
				),
			)
			if err := form.RunWithContext(cmd.Context()); err != nil {
				return err
			}
		}
		d.Persona = profile.Persona(persona)
		d.SkillLevel = profile.SkillLevel(skill)
		d.LearningPace = profile.LearningPace(pace)

		return withApp(cmd, func(ctx context.Context, a *app) error {
			user, err := a.profile.SignUp(ctx, email, password, d)
			if err != nil {
				return err
			}
			printSuccess("Account created for %s", user.Name())
			fmt.Fprintln(cmd.OutOrStdout(), a.profile.Summary())
			return nil
		})
	},
}

func init() {
	signupCmd.Flags().String("email", "", "account email")
	signupCmd.Flags().String("password", "", "account password")
	signupCmd.Flags().String("name", "", "full name")
	signupCmd.Flags().String("persona", "", "student, educator, self_learner or industry_professional")
	signupCmd.Flags().String("skill-level", "", "beginner, intermediate or advanced")
	signupCmd.Flags().String("pace", "", "accelerated, standard or extended")
}

// --- signout ---

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and clear local preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.profile.SignOut(ctx); err != nil {
				return err
			}
			printSuccess("Signed out")
			return nil
		})
	},
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			info, err := a.profile.Session(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if info.User == nil {
				fmt.Fprintln(out, "Not signed in.")
				return nil
			}
			fmt.Fprintf(out, "Signed in as %s <%s>\n", info.User.Name(), info.User.Email)
			return nil
		})
	},
}
