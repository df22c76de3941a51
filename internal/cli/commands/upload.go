package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/output"
	"github.com/leapstack-labs/rqg/internal/upload"
)

// UploadOptions holds options for the upload command.
type UploadOptions struct {
	Bundle string
	APIURL string
	Token  string
}

// NewUploadCommand creates the upload command.
func NewUploadCommand() *cobra.Command {
	opts := &UploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a run bundle to an rqg server",
		Long: `Upload a run bundle to a central rqg server, which analyzes it and
returns the decision.

The server URL and token come from --api-url and --token, or from upload.api_url
and upload.token in .rqg/config.yaml (RQG_UPLOAD__API_URL, RQG_UPLOAD__TOKEN).`,
		Example: `  rqg upload --api-url https://rqg.example.com --token $RQG_TOKEN`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Bundle, "bundle", "b", DefaultBundlePath, "Bundle file to upload")
	cmd.Flags().StringVar(&opts.APIURL, "api-url", "", "rqg server URL")
	cmd.Flags().StringVar(&opts.Token, "token", "", "API token")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *UploadOptions) error {
	cc := NewCommandContext(cmd)

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = cc.Cfg.Upload.APIURL
	}
	token := opts.Token
	if token == "" {
		token = cc.Cfg.Upload.Token
	}

	client, err := upload.NewClient(apiURL, token)
	if err != nil {
		return err
	}
	record, err := client.UploadFile(cmd.Context(), opts.Bundle)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(record)
	}
	r.StatusLine("Bundle uploaded successfully", "success", "")
	r.Println(output.FormatKeyValue("Decision", r.DecisionStyle(record.Decision).Render(output.DecisionLabel(record.Decision))))
	return nil
}
