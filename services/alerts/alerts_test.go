package alerts

import (
	"context"
	"errors"
	"io"
	"lapets-backend/lib/telemetry"
	"lapets-backend/services/orchestrator"
	"lapets-backend/services/reconcile"
	"log"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var summary = orchestrator.Summary{
	TotalSources:      3,
	SuccessfulSources: 1,
	Sources: []orchestrator.SourceResult{
		{SourceKey: "spcala", Name: "spcaLA", Success: true, Found: 40},
		{SourceKey: "la-city", Name: "LA City Animal Services", Err: errors.New("503 service unavailable")},
		{
			SourceKey:    "best-friends",
			Name:         "Best Friends Animal Society - LA",
			Success:      true,
			Found:        12,
			Stats:        reconcile.Stats{Found: 12, Added: 10, Failed: 2},
			ReconcileErr: errors.New("write run log: disk full"),
		},
	},
}

func TestDigest(t *testing.T) {
	body := Digest(summary)
	require.Contains(t, body, "2 of 3 sources failed")
	require.Contains(t, body, "LA City Animal Services (la-city)\n  scrape: 503 service unavailable")
	require.Contains(t, body, "store: write run log: disk full")
	require.Contains(t, body, "found 12, failed to save 2")
	require.NotContains(t, body, "spcaLA")
}

func TestNotifyDisabled(t *testing.T) {
	require.NoError(t, NewMailer(Options{}).Notify(context.Background(), summary))
}

func TestNotify(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	cleanup := telemetry.SetupForTesting(t, "test:services/alerts")
	defer cleanup()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtpServer, err := testcontainers.GenericContainer(
		context.Background(),
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "haravich/fake-smtp-server",
				ExposedPorts: []string{"1025:1025", "1090:1080"},
				WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
			},
		},
	)
	if err != nil {
		t.Skipf("fake smtp server unavailable: %s", err)
	}
	defer func() {
		err := smtpServer.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	}()

	mailer := NewMailer(Options{
		Smtp: SmtpConfig{
			Server:       "localhost",
			Port:         1025,
			EmailAddress: "alerts@lapets.org",
			Password:     "default",
		},
		Recipients: []string{"ops@lapets.org"},
	})
	require.NoError(t, mailer.Notify(context.Background(), summary))

	res, err := resty.New().R().Get("http://127.0.0.1:1090/messages/1.plain")
	require.NoError(t, err)
	require.Contains(t, res.String(), "LA City Animal Services (la-city)")
}
