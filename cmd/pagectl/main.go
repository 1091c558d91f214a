// Package main provides pagectl, an operator CLI for driving the Graph API
// surface directly: listing pages, posting, managing webhook subscriptions,
// exchanging tokens, and walking a reel upload through its phases without
// the Step Functions orchestrator. Useful for onboarding new pages and for
// debugging the publish flow against a real account.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pagebridge/internal/graph"
	"pagebridge/internal/logging"
	"pagebridge/internal/reelflow"
)

// CLI flags
var (
	appIDFlag     string
	appSecretFlag string
	tokenFlag     string

	pageIDFlag      string
	instagramIDFlag string
	messageFlag     string
	mediaTypeFlag   string
	mediaURLFlag    string
	platformFlag    string
	fieldsFlag      []string
	limitFlag       int

	pollIntervalFlag time.Duration
	pollTimeoutFlag  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pagectl",
	Short: "Operate Facebook Pages and Instagram Business accounts",
	Long: `pagectl drives the Meta Graph API from the command line: page listing,
posting, webhook subscription management, token exchange, and the reel
upload flow.

Credentials come from --app-id/--app-secret or the FACEBOOK_APP_ID and
FACEBOOK_APP_SECRET environment variables. Page and user tokens are passed
per command with --token.

Examples:
  pagectl pages --token <user-token>
  pagectl post --page-id 123 --token <page-token> --message "Hello"
  pagectl subscribe --page-id 123 --token <page-token> --fields feed
  pagectl reel --page-id 123 --token <page-token> --message "New reel" \
    --video-url https://example.com/video.mp4`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appIDFlag, "app-id", os.Getenv("FACEBOOK_APP_ID"), "Meta app id")
	rootCmd.PersistentFlags().StringVar(&appSecretFlag, "app-secret", os.Getenv("FACEBOOK_APP_SECRET"), "Meta app secret")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Access token for the command")

	rootCmd.AddCommand(pagesCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(subscriptionsCmd())
	rootCmd.AddCommand(subscribeCmd())
	rootCmd.AddCommand(unsubscribeCmd())
	rootCmd.AddCommand(extendTokenCmd())
	rootCmd.AddCommand(reelCmd())
	rootCmd.AddCommand(liveCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds the Graph API client from the global credential flags.
func newClient() *graph.Client {
	logging.Init()
	return graph.NewClient(graph.Config{
		AppID:     appIDFlag,
		AppSecret: appSecretFlag,
	})
}

// requireFlags fatals unless every named flag value is non-empty.
func requireFlags(pairs map[string]string) {
	for name, value := range pairs {
		if value == "" {
			log.Fatal().Str("flag", name).Msg("Required flag missing")
		}
	}
}

// printJSON renders a result to stdout for piping into jq.
func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render result")
	}
	fmt.Println(string(out))
}

func pagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List pages the user token can manage",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"token": tokenFlag})
			pages, err := newClient().Pages(context.Background(), tokenFlag)
			if err != nil {
				log.Fatal().Err(err).Msg("Page listing failed")
			}
			printJSON(pages)
		},
	}
}

func postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish a text, photo, or video post to a page",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"page-id": pageIDFlag, "token": tokenFlag, "message": messageFlag})
			result, err := newClient().PostToPage(context.Background(),
				pageIDFlag, tokenFlag, messageFlag, graph.MediaKind(mediaTypeFlag), mediaURLFlag)
			if err != nil {
				log.Fatal().Err(err).Msg("Post failed")
			}
			printJSON(result)
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id")
	cmd.Flags().StringVar(&messageFlag, "message", "", "Post text")
	cmd.Flags().StringVar(&mediaTypeFlag, "media-type", "none", "Media kind: none, image, or video")
	cmd.Flags().StringVar(&mediaURLFlag, "media-url", "", "Hosted media URL")
	return cmd
}

func feedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch a page's recent posts",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"page-id": pageIDFlag, "token": tokenFlag})
			feed, err := newClient().PageFeed(context.Background(), pageIDFlag, tokenFlag, limitFlag, "")
			if err != nil {
				log.Fatal().Err(err).Msg("Feed fetch failed")
			}
			printJSON(feed)
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id")
	cmd.Flags().IntVar(&limitFlag, "limit", 25, "Number of posts to fetch")
	return cmd
}

func subscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "List apps subscribed to a page's webhooks",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"page-id": pageIDFlag, "token": tokenFlag})
			subs, err := newClient().PageSubscriptions(context.Background(), pageIDFlag, tokenFlag)
			if err != nil {
				log.Fatal().Err(err).Msg("Subscription listing failed")
			}
			printJSON(subs)
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id")
	return cmd
}

func subscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe the app to a page's webhook fields",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"page-id": pageIDFlag, "token": tokenFlag})
			if err := newClient().SubscribePage(context.Background(), pageIDFlag, tokenFlag, fieldsFlag); err != nil {
				log.Fatal().Err(err).Msg("Subscription failed")
			}
			fmt.Println("subscribed")
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id")
	cmd.Flags().StringSliceVar(&fieldsFlag, "fields", nil, "Webhook fields (default: feed)")
	return cmd
}

func unsubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Remove webhook fields from the app's page subscription",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"page-id": pageIDFlag, "token": tokenFlag})
			if len(fieldsFlag) == 0 {
				log.Fatal().Msg("At least one --fields value is required")
			}
			remaining, err := newClient().UnsubscribeFields(context.Background(), pageIDFlag, tokenFlag, fieldsFlag)
			if err != nil {
				log.Fatal().Err(err).Msg("Unsubscribe failed")
			}
			printJSON(map[string]interface{}{"remaining_fields": remaining})
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id")
	cmd.Flags().StringSliceVar(&fieldsFlag, "fields", nil, "Webhook fields to remove")
	return cmd
}

func extendTokenCmd() *cobra.Command {
	var pageToken bool
	cmd := &cobra.Command{
		Use:   "extend-token",
		Short: "Exchange a short-lived token for a long-lived one",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"token": tokenFlag, "app-id": appIDFlag, "app-secret": appSecretFlag})
			client := newClient()
			var (
				result *graph.TokenResponse
				err    error
			)
			if pageToken {
				result, err = client.ExtendPageToken(context.Background(), tokenFlag)
			} else {
				result, err = client.ExtendUserToken(context.Background(), tokenFlag)
			}
			if err != nil {
				log.Fatal().Err(err).Msg("Token exchange failed")
			}
			printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&pageToken, "page", false, "Exchange a page token instead of a user token")
	return cmd
}

// reelCmd walks the full upload flow inline: init, upload, poll until ready,
// publish with not_ready retries. The Lambda deployment delegates this
// cadence to Step Functions; the CLI polls locally instead.
func reelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reel",
		Short: "Upload and publish a reel, polling until done",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"token": tokenFlag, "message": messageFlag, "video-url": mediaURLFlag})
			runReelFlow()
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id (Facebook)")
	cmd.Flags().StringVar(&instagramIDFlag, "instagram-id", "", "Instagram Business Account id (Instagram)")
	cmd.Flags().StringVar(&messageFlag, "message", "", "Reel description/caption")
	cmd.Flags().StringVar(&mediaURLFlag, "video-url", "", "Hosted video URL (HTTPS)")
	cmd.Flags().StringVar(&platformFlag, "platform", reelflow.PlatformFacebook, "Target platform: facebook or instagram")
	cmd.Flags().DurationVar(&pollIntervalFlag, "poll-interval", 10*time.Second, "Delay between status checks")
	cmd.Flags().DurationVar(&pollTimeoutFlag, "poll-timeout", 10*time.Minute, "Give up after this long")
	return cmd
}

func runReelFlow() {
	flow := reelflow.New(newClient())
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeoutFlag)
	defer cancel()

	session := reelflow.Session{
		Platform:    platformFlag,
		PageID:      pageIDFlag,
		InstagramID: instagramIDFlag,
		AccessToken: tokenFlag,
		Description: messageFlag,
		VideoURL:    mediaURLFlag,
		ShareToFeed: true,
	}

	result := flow.Init(ctx, session)
	printJSON(result)
	if result.Status == reelflow.StatusError {
		os.Exit(1)
	}
	session.VideoID = result.VideoID
	session.CreationID = result.CreationID

	result = flow.UploadHostedFile(ctx, session)
	printJSON(result)
	if result.Status == reelflow.StatusError {
		os.Exit(1)
	}

	for {
		result = flow.CheckStatus(ctx, session)
		session.Attempt = result.Attempt
		printJSON(result)
		switch result.Status {
		case reelflow.StatusReady:
		case reelflow.StatusProcessing, reelflow.StatusUnknown:
			sleepOrDie(ctx, pollIntervalFlag)
			continue
		default:
			os.Exit(1)
		}
		break
	}

	for {
		result = flow.Publish(ctx, session)
		printJSON(result)
		switch result.Status {
		case reelflow.StatusSuccess:
			return
		case reelflow.StatusNotReady:
			session.PublishAttempt = result.PublishAttempt
			sleepOrDie(ctx, pollIntervalFlag)
		default:
			os.Exit(1)
		}
	}
}

// sleepOrDie waits for the poll interval, aborting when the overall timeout
// expires.
func sleepOrDie(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
		log.Fatal().Msg("Polling timeout exceeded")
	}
}

func liveCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Create a live video and print its ingest endpoint",
		Run: func(cmd *cobra.Command, args []string) {
			requireFlags(map[string]string{"page-id": pageIDFlag, "token": tokenFlag, "title": title})
			stream, err := newClient().CreateLiveStream(context.Background(), pageIDFlag, tokenFlag, title, description)
			if err != nil {
				log.Fatal().Err(err).Msg("Live stream creation failed")
			}
			printJSON(stream)
		},
	}
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Target page id")
	cmd.Flags().StringVar(&title, "title", "", "Stream title")
	cmd.Flags().StringVar(&description, "description", "", "Stream description (defaults to title)")
	return cmd
}
