package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

func TestPrintDistributionJobIncludesErrorLine(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w

	errMsg := "twilio: 401 unauthorized"
	job := &model.DistributionJob{
		ID:           "job-123",
		BusinessID:   "biz-1",
		ContentID:    "content-1",
		Channel:      model.ChannelSMS,
		Status:       model.DistributionError,
		ScheduledAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		ErrorMessage: &errMsg,
	}
	err = printDistributionJob(job)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Contains(t, outStr, "job-123")
	require.Contains(t, outStr, "sms")
	require.Contains(t, outStr, "twilio: 401 unauthorized")
}

func TestParseRequeueFlags(t *testing.T) {
	opts, err := parseRequeueFlags(nil)
	require.NoError(t, err)
	require.Equal(t, "all", opts.Queue)

	opts, err = parseRequeueFlags([]string{"--queue", "Research"})
	require.NoError(t, err)
	require.Equal(t, "research", opts.Queue)

	_, err = parseRequeueFlags([]string{"--queue", "bogus"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "distribution, research, or all")
}

func TestParseJobStatusFlags(t *testing.T) {
	opts, err := parseJobStatusFlags([]string{"--job-id", "abc", "--kind", "research"})
	require.NoError(t, err)
	require.Equal(t, "research", opts.Kind)
	require.Equal(t, "abc", opts.JobID)

	_, err = parseJobStatusFlags([]string{"--kind", "distribution"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--job-id is required")

	_, err = parseJobStatusFlags([]string{"--job-id", "abc", "--kind", "maintenance"})
	require.Error(t, err)
}

func TestIsLikelyRemoteHost(t *testing.T) {
	require.False(t, isLikelyRemoteHost("localhost"))
	require.False(t, isLikelyRemoteHost("127.0.0.1"))
	require.False(t, isLikelyRemoteHost("::1"))
	require.False(t, isLikelyRemoteHost("dev-db.local"))
	require.False(t, isLikelyRemoteHost(""))
	require.True(t, isLikelyRemoteHost("db.prod.example.com"))
	require.True(t, isLikelyRemoteHost("10.1.2.3"))
}
