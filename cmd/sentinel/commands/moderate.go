package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
)

// NewModerateCmd runs one decision and prints it as JSON.
func NewModerateCmd() *cobra.Command {
	var (
		source    string
		locale    string
		channel   string
		requestID string
	)
	cmd := &cobra.Command{
		Use:   "moderate <text>",
		Short: "Run one moderation decision and print it as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			p, _, err := buildPipeline(cmd.Context(), settings)
			if err != nil {
				return err
			}

			req := &moderation.Request{
				Text:      strings.Join(args, " "),
				RequestID: requestID,
			}
			if source != "" || locale != "" || channel != "" {
				req.Context = &moderation.Context{Source: source, Locale: locale, Channel: channel}
			}

			decision, err := p.Decide(cmd.Context(), req)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(decision, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Request context source (e.g. partner_factcheck)")
	cmd.Flags().StringVar(&locale, "locale", "", "Request context locale")
	cmd.Flags().StringVar(&channel, "channel", "", "Request context channel (e.g. forward, broadcast)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Client request id echoed into logs")
	return cmd
}
