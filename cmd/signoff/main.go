package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"signoff/client/api"
	"signoff/client/app"
	"signoff/client/cache"
	"signoff/client/domain"
	"signoff/client/session"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "signoff",
		Short:         "Share a deliverable for client sign-off and track its review",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCreateCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newUploadCmd(),
		newDraftCmd(),
		newDecideCmd(),
		newDeleteFileCmd(),
		newExpireCmd(),
		newDownloadCmd(),
		newDeleteCmd(),
		newClearSessionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newSession() (*session.Session, error) {
	return session.New(app.LoadConfig())
}

// adminToken resolves the stored credential; every admin-only command fails
// fast without one instead of hitting the backend.
func adminToken(s *session.Session) (string, error) {
	token, ok := s.Local.AdminToken()
	if !ok || token == "" {
		return "", api.ErrAuthMissing
	}
	return token, nil
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project and store its admin credential locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			project, err := s.CreateProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("created project %q\n", project.Name)
			fmt.Printf("  admin token:  %s (stored)\n", project.AdminToken)
			fmt.Printf("  review link:  share token %s with your client\n", project.PublicToken)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var publicToken string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current project view",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			var project domain.Project
			if publicToken != "" {
				project, err = s.FetchPublicProject(cmd.Context(), publicToken)
			} else {
				var token string
				token, err = adminToken(s)
				if err == nil {
					project, err = s.FetchAdminProject(cmd.Context(), token)
				}
			}
			if err != nil {
				return err
			}
			printProject(project)
			return nil
		},
	}
	cmd.Flags().StringVar(&publicToken, "token", "", "Public review token (reviewer side)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var publicToken string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the project over realtime push with polling fallback",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}

			var key cache.Key
			if publicToken != "" {
				if _, err := s.FetchPublicProject(cmd.Context(), publicToken); err != nil {
					return err
				}
				key = cache.PublicKey(publicToken)
			} else {
				token, err := adminToken(s)
				if err != nil {
					return err
				}
				if _, err := s.FetchAdminProject(cmd.Context(), token); err != nil {
					return err
				}
				key = cache.AdminKey(token)
			}

			unsubscribe := s.Cache.Subscribe(key, func(ev cache.Event) {
				switch ev.Kind {
				case cache.EventUpdated:
					if project, ok := s.Cache.Get(key); ok {
						printProject(project)
					}
				case cache.EventRemoved:
					fmt.Println("project removed")
				}
			})
			defer unsubscribe()

			stop := s.Watch(key)
			defer stop()

			if project, ok := s.Cache.Get(key); ok {
				printProject(project)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&publicToken, "token", "", "Public review token (reviewer side)")
	return cmd
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [path]",
		Short: "Upload the deliverable; without a path, resume the saved draft",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			token, err := adminToken(s)
			if err != nil {
				return err
			}

			var d domain.UploadDraft
			if len(args) == 1 {
				d, err = draftFromPath(args[0])
				if err != nil {
					return err
				}
				if err := s.Drafts.Save(d); err != nil {
					return err
				}
			} else {
				var ok bool
				d, ok = s.Drafts.Load()
				if !ok {
					return errors.New("no saved draft; pass a file path")
				}
				fmt.Printf("resuming draft %s (%d bytes)\n", d.Name, len(d.Content))
			}

			s.Uploads.OnProgress(func(percent int) {
				fmt.Printf("\ruploading... %3d%%", percent)
			})
			asset, err := s.Uploads.Upload(cmd.Context(), token, d)
			fmt.Println()
			if err != nil {
				return fmt.Errorf("%w (draft kept, retry with `signoff upload`)", err)
			}
			fmt.Printf("uploaded %s (%d bytes) file_id=%s\n", asset.FileName, asset.Size, asset.ID)
			return nil
		},
	}
	return cmd
}

func newDraftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect the saved upload draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			d, ok := s.Drafts.Load()
			if !ok {
				fmt.Println("no saved draft")
				return nil
			}
			fmt.Printf("draft: %s (%s, %d bytes)\n", d.Name, d.MimeType, len(d.Content))
			if preview, ok := s.Drafts.PreviewPath(); ok {
				fmt.Printf("preview: %s\n", preview)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard the saved draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			s.Drafts.Clear()
			fmt.Println("draft cleared")
			return nil
		},
	})
	return cmd
}

func newDecideCmd() *cobra.Command {
	var publicToken, comment string
	cmd := &cobra.Command{
		Use:   "decide <approved|changes-requested>",
		Short: "Submit the reviewer decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var decision domain.DecisionType
			switch args[0] {
			case "approved":
				decision = domain.DecisionApproved
			case "changes-requested":
				decision = domain.DecisionChangesRequested
			default:
				return fmt.Errorf("decision must be approved or changes-requested")
			}
			if publicToken == "" {
				return errors.New("--token is required")
			}

			s, err := newSession()
			if err != nil {
				return err
			}
			project, err := s.SubmitDecision(cmd.Context(), publicToken, decision, comment)
			if err != nil {
				return err
			}
			printProject(project)
			return nil
		},
	}
	cmd.Flags().StringVar(&publicToken, "token", "", "Public review token")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Feedback comment")
	return cmd
}

func newDeleteFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-file",
		Short: "Detach and remove the current deliverable",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			token, err := adminToken(s)
			if err != nil {
				return err
			}
			project, err := s.FetchAdminProject(cmd.Context(), token)
			if err != nil {
				return err
			}
			if project.File == nil {
				return errors.New("no deliverable attached")
			}
			if err := s.DeleteFile(cmd.Context(), token, project.File.ID, project.ID); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", project.File.FileName)
			return nil
		},
	}
}

func newExpireCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Move the expiry window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			s, err := newSession()
			if err != nil {
				return err
			}
			token, err := adminToken(s)
			if err != nil {
				return err
			}
			if err := s.UpdateExpiration(cmd.Context(), token, days); err != nil {
				return err
			}
			fmt.Printf("expiration set to %d days from now\n", days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Days until expiry")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var publicToken string
	var preview bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Resolve a signed link for the deliverable",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}

			var project domain.Project
			token := publicToken
			if token != "" {
				project, err = s.FetchPublicProject(cmd.Context(), token)
			} else {
				token, err = adminToken(s)
				if err == nil {
					project, err = s.FetchAdminProject(cmd.Context(), token)
				}
			}
			if err != nil {
				return err
			}
			if project.File == nil {
				return errors.New("no deliverable attached")
			}

			handle, err := s.DownloadHandle(cmd.Context(), project.File.ID, token, !preview)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", handle.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&publicToken, "token", "", "Public review token (reviewer side)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Inline link instead of forced download")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the project permanently",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			s, err := newSession()
			if err != nil {
				return err
			}
			token, err := adminToken(s)
			if err != nil {
				return err
			}
			if err := s.DeleteProject(cmd.Context(), token); err != nil {
				return err
			}
			fmt.Println("project deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}

func newClearSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-session",
		Short: "Wipe all locally persisted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			s.Drafts.Clear()
			if err := s.Local.ClearSession(); err != nil {
				return err
			}
			fmt.Println("session cleared")
			return nil
		},
	}
}

func draftFromPath(path string) (domain.UploadDraft, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadDraft{}, err
	}
	return domain.UploadDraft{
		Name:     filepath.Base(path),
		MimeType: sniffMime(path, content),
		Content:  content,
	}, nil
}

func sniffMime(path string, content []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(content)
}

func printProject(project domain.Project) {
	now := time.Now()
	fmt.Printf("[%s] %s status=%s", now.Format("15:04:05"), project.Name, project.EffectiveStatus(now))
	if project.LatestComment != nil && *project.LatestComment != "" {
		fmt.Printf(" comment=%q", *project.LatestComment)
	}
	if project.ExpiresAt != nil {
		cd := domain.Remaining(project.ExpiresAt, now)
		if cd.Expired {
			fmt.Printf(" expired")
		} else {
			fmt.Printf(" expires_in=%dd%dh%dm", cd.Days, cd.Hours, cd.Minutes)
		}
	}
	if project.File != nil {
		fmt.Printf(" file=%s", project.File.FileName)
	}
	fmt.Println()
}
