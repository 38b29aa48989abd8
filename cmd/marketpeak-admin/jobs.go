package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/bootstrap"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

const defaultInspectTimeout = time.Minute

type requeueOptions struct {
	Queue string
}

type jobStatusOptions struct {
	Kind    string
	JobID   string
	RawJSON bool
}

type timelineOptions struct {
	JobID   string
	RawJSON bool
}

type listCredentialsOptions struct {
	BusinessID string
}

func runRequeueExpired(cmdCtx *commandContext, args []string) error {
	opts, err := parseRequeueFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultInspectTimeout, func(ctx context.Context, db *sql.DB) error {
		if opts.Queue == "distribution" || opts.Queue == "all" {
			repo := data.NewDistributionRepo(db, data.DistributionRepoConfig{Logger: cmdCtx.Logger})
			n, requeueErr := repo.RequeueExpired(ctx)
			if requeueErr != nil {
				return requeueErr
			}
			if printErr := writef(os.Stdout, "Requeued %d expired distribution jobs\n", n); printErr != nil {
				return fmt.Errorf("print distribution requeue count: %w", printErr)
			}
		}

		if opts.Queue == "research" || opts.Queue == "all" {
			repo := data.NewResearchRepo(db, data.ResearchRepoConfig{Logger: cmdCtx.Logger})
			n, requeueErr := repo.RequeueExpired(ctx)
			if requeueErr != nil {
				return requeueErr
			}
			if printErr := writef(os.Stdout, "Requeued %d expired research jobs\n", n); printErr != nil {
				return fmt.Errorf("print research requeue count: %w", printErr)
			}
		}

		return nil
	})
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobStatusFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultInspectTimeout, func(ctx context.Context, db *sql.DB) error {
		switch opts.Kind {
		case "distribution":
			repo := data.NewDistributionRepo(db, data.DistributionRepoConfig{Logger: cmdCtx.Logger})
			job, getErr := repo.GetByID(ctx, opts.JobID)
			if getErr != nil {
				if errors.Is(getErr, model.ErrDistributionJobNotFound) {
					return printJobNotFound(opts.JobID)
				}
				return getErr
			}
			if opts.RawJSON {
				return printJSON(job)
			}
			return printDistributionJob(job)
		case "research":
			repo := data.NewResearchRepo(db, data.ResearchRepoConfig{Logger: cmdCtx.Logger})
			job, getErr := repo.GetByID(ctx, opts.JobID)
			if getErr != nil {
				if errors.Is(getErr, model.ErrResearchJobNotFound) {
					return printJobNotFound(opts.JobID)
				}
				return getErr
			}
			if opts.RawJSON {
				return printJSON(job)
			}
			return printResearchJob(job)
		default:
			return fmt.Errorf("unknown job kind %q", opts.Kind)
		}
	})
}

func runResearchTimeline(cmdCtx *commandContext, args []string) error {
	opts, err := parseTimelineFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultInspectTimeout, func(ctx context.Context, db *sql.DB) error {
		events, listErr := data.NewTimelineRepo(db).ListByJob(ctx, opts.JobID)
		if listErr != nil {
			return listErr
		}
		if opts.RawJSON {
			return printJSON(events)
		}
		return printTimeline(opts.JobID, events)
	})
}

func runListCredentials(cmdCtx *commandContext, args []string) error {
	opts, err := parseListCredentialsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultInspectTimeout, func(ctx context.Context, db *sql.DB) error {
		vault, vaultErr := bootstrap.CreateVault(cmdCtx.Config.CredentialEncryptionKey, cmdCtx.Config.IsDev, cmdCtx.Logger)
		if vaultErr != nil {
			return vaultErr
		}
		summaries, listErr := data.NewCredentialRepo(db, vault).ListByBusiness(ctx, opts.BusinessID)
		if listErr != nil {
			return listErr
		}
		return printCredentialSummaries(opts.BusinessID, summaries)
	})
}

func printJobNotFound(jobID string) error {
	if err := writef(os.Stdout, "No job found with ID %s\n", jobID); err != nil {
		return fmt.Errorf("print job not found notice: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if writeErr := writef(os.Stdout, "%s\n", out); writeErr != nil {
		return fmt.Errorf("print payload: %w", writeErr)
	}
	return nil
}

func printDistributionJob(job *model.DistributionJob) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"Job ID", job.ID},
		{"Business", job.BusinessID},
		{"Content", job.ContentID},
		{"Channel", string(job.Channel)},
		{"Status", string(job.Status)},
		{"Scheduled At", job.ScheduledAt.Format(time.RFC3339)},
		{"Created At", job.CreatedAt.Format(time.RFC3339)},
		{"Updated At", job.UpdatedAt.Format(time.RFC3339)},
	}
	if job.ExternalID != nil {
		rows = append(rows, struct{ label, value string }{"External ID", *job.ExternalID})
	}
	if job.LeaseExpires != nil {
		rows = append(rows, struct{ label, value string }{"Lease Expires", job.LeaseExpires.Format(time.RFC3339)})
	}
	if job.ErrorMessage != nil {
		rows = append(rows, struct{ label, value string }{"Error", *job.ErrorMessage})
	}

	for _, row := range rows {
		if err := writef(w, "%s\t%s\n", row.label, row.value); err != nil {
			return fmt.Errorf("write job row %q: %w", row.label, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush job table: %w", err)
	}
	return nil
}

func printResearchJob(job *model.ResearchJob) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"Job ID", job.ID},
		{"Business", job.BusinessID},
		{"User", job.UserID},
		{"Topic", job.Topic},
		{"Status", string(job.Status)},
		{"Stage", string(job.Stage)},
		{"Created At", job.CreatedAt.Format(time.RFC3339)},
	}
	if len(job.SourceURLs) > 0 {
		rows = append(rows, struct{ label, value string }{"Source URLs", strings.Join(job.SourceURLs, ", ")})
	}
	if job.StartedAt != nil {
		rows = append(rows, struct{ label, value string }{"Started At", job.StartedAt.Format(time.RFC3339)})
	}
	if job.FinishedAt != nil {
		rows = append(rows, struct{ label, value string }{"Finished At", job.FinishedAt.Format(time.RFC3339)})
	}
	if job.CostUSD != nil {
		rows = append(rows, struct{ label, value string }{"Cost (USD)", fmt.Sprintf("%.6f", *job.CostUSD)})
	}
	if job.LeaseExpires != nil {
		rows = append(rows, struct{ label, value string }{"Lease Expires", job.LeaseExpires.Format(time.RFC3339)})
	}
	if job.ErrorMessage != nil {
		rows = append(rows, struct{ label, value string }{"Error", *job.ErrorMessage})
	}

	for _, row := range rows {
		if err := writef(w, "%s\t%s\n", row.label, row.value); err != nil {
			return fmt.Errorf("write job row %q: %w", row.label, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush job table: %w", err)
	}

	if job.Result != nil {
		if err := printResearchResult(job.Result); err != nil {
			return err
		}
	}
	return nil
}

func printResearchResult(result *model.ResearchResult) error {
	if err := writef(os.Stdout, "\nResult\n"); err != nil {
		return fmt.Errorf("write result header: %w", err)
	}
	if err := writef(os.Stdout, "Pages analyzed: %d\n", len(result.InputCompanyAnalyses)); err != nil {
		return fmt.Errorf("write page count: %w", err)
	}
	if len(result.IdentifiedCompetitors) > 0 {
		if err := writef(
			os.Stdout,
			"Competitors: %s\n",
			strings.Join(result.IdentifiedCompetitors, ", "),
		); err != nil {
			return fmt.Errorf("write competitors: %w", err)
		}
	}
	if result.OverallSummary != "" {
		if err := writef(os.Stdout, "\n%s\n", result.OverallSummary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

func printTimeline(jobID string, events []model.StageEvent) error {
	if err := writef(os.Stdout, "\nResearch Timeline for %s\n", jobID); err != nil {
		return fmt.Errorf("write timeline header: %w", err)
	}
	if len(events) == 0 {
		if err := writeln(os.Stdout, "  (no timeline events)"); err != nil {
			return fmt.Errorf("write timeline empty message: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "TIMESTAMP\tSTEP\tNOTE"); err != nil {
		return fmt.Errorf("write timeline header row: %w", err)
	}
	for _, ev := range events {
		note := ev.Note
		if note == "" {
			note = "-"
		}
		if err := writef(
			w,
			"%s\t%s\t%s\n",
			ev.Timestamp.Format(time.RFC3339),
			ev.Step,
			note,
		); err != nil {
			return fmt.Errorf("write timeline entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush timeline table: %w", err)
	}
	if err := writef(os.Stdout, "Total events: %d\n", len(events)); err != nil {
		return fmt.Errorf("write timeline total: %w", err)
	}
	return nil
}

func printCredentialSummaries(businessID string, summaries []model.CredentialSummary) error {
	if err := writef(os.Stdout, "\nChannel credentials for business %q\n", businessID); err != nil {
		return fmt.Errorf("write credentials header: %w", err)
	}
	if len(summaries) == 0 {
		if err := writeln(os.Stdout, "  (no credentials stored)"); err != nil {
			return fmt.Errorf("write credentials empty message: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "CHANNEL\tID\tCREATED"); err != nil {
		return fmt.Errorf("write credentials header row: %w", err)
	}
	for _, s := range summaries {
		if err := writef(
			w,
			"%s\t%s\t%s\n",
			s.Channel,
			s.ID,
			s.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("write credential entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush credentials table: %w", err)
	}
	return nil
}

func parseRequeueFlags(args []string) (requeueOptions, error) {
	fs := flag.NewFlagSet("requeue-expired", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts requeueOptions
	fs.StringVar(&opts.Queue, "queue", "all", "Queue to requeue: distribution, research, or all")

	if err := fs.Parse(args); err != nil {
		return requeueOptions{}, err
	}

	opts.Queue = strings.ToLower(strings.TrimSpace(opts.Queue))
	switch opts.Queue {
	case "distribution", "research", "all":
		return opts, nil
	default:
		return requeueOptions{}, fmt.Errorf("--queue must be distribution, research, or all (got %q)", opts.Queue)
	}
}

func parseJobStatusFlags(args []string) (jobStatusOptions, error) {
	fs := flag.NewFlagSet("job-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobStatusOptions
	fs.StringVar(&opts.Kind, "kind", "distribution", "Job kind: distribution or research")
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to inspect (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the raw job record as JSON")

	if err := fs.Parse(args); err != nil {
		return jobStatusOptions{}, err
	}

	opts.Kind = strings.ToLower(strings.TrimSpace(opts.Kind))
	if opts.Kind != "distribution" && opts.Kind != "research" {
		return jobStatusOptions{}, fmt.Errorf("--kind must be distribution or research (got %q)", opts.Kind)
	}
	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return jobStatusOptions{}, errors.New("--job-id is required")
	}

	return opts, nil
}

func parseTimelineFlags(args []string) (timelineOptions, error) {
	fs := flag.NewFlagSet("research-timeline", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts timelineOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Research job ID (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print raw timeline events as JSON")

	if err := fs.Parse(args); err != nil {
		return timelineOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return timelineOptions{}, errors.New("--job-id is required")
	}

	return opts, nil
}

func parseListCredentialsFlags(args []string) (listCredentialsOptions, error) {
	fs := flag.NewFlagSet("list-credentials", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listCredentialsOptions
	fs.StringVar(&opts.BusinessID, "business-id", "", "Business ID to list credentials for (required)")

	if err := fs.Parse(args); err != nil {
		return listCredentialsOptions{}, err
	}

	opts.BusinessID = strings.TrimSpace(opts.BusinessID)
	if opts.BusinessID == "" {
		return listCredentialsOptions{}, errors.New("--business-id is required")
	}

	return opts, nil
}
