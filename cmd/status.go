package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bouncepath/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the body of GET /api/v1/jobs/{id}
type jobStatus struct {
	server.Job
	Elapsed float64 `json:"elapsed"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s", serverURL, jobID), jobID)
}

func getJSON(url string, target any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(out io.Writer, url string) error {
	var jobs []server.Job
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Fields: %d, T = %g\n", job.Config.Potential.Fields, job.Config.Temperature)
		if job.Improvements > 0 {
			fmt.Fprintf(out, "  Action: %.6g after %d improvement(s)\n", job.BestAction, job.Improvements)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Fields: %d\n", cfg.Potential.Fields)
	fmt.Fprintf(out, "  False vacuum: %v\n", cfg.Vacua.False)
	fmt.Fprintf(out, "  True vacuum: %v\n", cfg.Vacua.True)
	fmt.Fprintf(out, "  Temperature: %g (%s)\n", cfg.Temperature, cfg.Tunneling.Symmetry)
	fmt.Fprintf(out, "  Minimizer: %s\n", cfg.Improvement.Minimizer)
	fmt.Fprintf(out, "  Max improvements: %d\n", cfg.Improvement.MaxImprovements)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Improvements: %d\n", status.Improvements)
	if status.CurvedAction > 0 {
		fmt.Fprintf(out, "  Curved action: %.6g\n", status.CurvedAction)
		fmt.Fprintf(out, "  Straight action: %.6g\n", status.StraightAction)
	}
	if status.Improvements > 0 {
		fmt.Fprintf(out, "  Best action: %.6g\n", status.BestAction)
	}
	if len(status.Weights) == 2 {
		fmt.Fprintf(out, "  Weights: (%.4f, %.4f)\n", status.Weights[0], status.Weights[1])
	}
	if status.Converged {
		fmt.Fprintln(out, "  Converged: yes")
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}
