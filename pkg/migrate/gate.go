package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/baselayer/pkg/observability"
)

const gateBackoffCap = 30 * time.Second

// WaitForMigrations polls the migration manager's status endpoint until it
// reports migrated=true. Backoff doubles from 1s and caps at 30s; there is
// no overall deadline — a permanently un-migrated database parks the
// process rather than letting it serve errors. The context cancels the wait.
func WaitForMigrations(ctx context.Context, statusURL string, logger *observability.Logger) error {
	client := &http.Client{Timeout: 5 * time.Second}
	backoff := 1 * time.Second

	for {
		migrated, err := checkOnce(ctx, client, statusURL)
		if err != nil {
			logger.WithError(err).Warnf("migration manager not reachable; retrying in %s", backoff)
		} else if migrated {
			logger.Info("schema is migrated")
			return nil
		} else {
			logger.Infof("schema not yet migrated; retrying in %s", backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > gateBackoffCap {
			backoff = gateBackoffCap
		}
	}
}

func checkOnce(ctx context.Context, client *http.Client, statusURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build status request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("migration manager returned status %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode status response: %w", err)
	}
	return body.Migrated, nil
}
