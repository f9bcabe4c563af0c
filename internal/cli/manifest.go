package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/annobridge/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect job manifests",
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate <uri>",
	Short: "Fetch a job manifest and check its invariants",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mf := fetchManifest(cmd.Context(), args[0])
		if err := mf.Validate(); err != nil {
			exitWithError("manifest invalid: %v", err)
		}
		fmt.Println("manifest ok")
	},
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <uri>",
	Short: "Fetch a job manifest and print a summary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mf := fetchManifest(cmd.Context(), args[0])

		fmt.Printf("job id:          %s\n", mf.JobID)
		fmt.Printf("request type:    %s\n", mf.RequestType)
		fmt.Printf("title:           %s\n", mf.ConfigString(manifest.ConfigKeyProjectTitle, mf.JobID))
		fmt.Printf("min repeats:     %d\n", mf.RequesterMinRepeats)
		if mf.RequesterAccuracyTarget != nil {
			fmt.Printf("accuracy target: %.2f\n", *mf.RequesterAccuracyTarget)
		}
		if mf.ExpirationDate > 0 {
			fmt.Printf("expires:         %s\n", time.Unix(mf.ExpirationDate, 0).UTC().Format(time.RFC3339))
		}
		if mf.TaskdataURI != "" {
			fmt.Printf("taskdata:        %s\n", mf.TaskdataURI)
		} else {
			fmt.Printf("taskdata:        %d inline datapoints\n", len(mf.Taskdata))
		}
		if err := mf.Validate(); err != nil {
			fmt.Printf("INVALID:         %v\n", err)
		}
	},
}

// fetchManifest loads a manifest from an http(s) URI, a file:// URI or a
// plain path.
func fetchManifest(ctx context.Context, uri string) *manifest.JobManifest {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	raw, err := manifest.FetchBytes(ctx, http.DefaultClient, uri)
	if err != nil {
		exitWithError("fetch manifest: %v", err)
	}
	mf, err := manifest.Load(bytes.NewReader(raw))
	if err != nil {
		exitWithError("parse manifest: %v", err)
	}
	return mf
}

func init() {
	manifestCmd.AddCommand(manifestValidateCmd)
	manifestCmd.AddCommand(manifestShowCmd)
}
