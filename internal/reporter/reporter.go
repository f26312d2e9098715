// Package reporter implements the best-effort manager notifier
// (§4.F): a fire-and-forget POST of connection metadata on admission.
// Failures are logged and never affect session lifecycle.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codingbear/mcrouter/internal/httpclient"
	"github.com/codingbear/mcrouter/internal/logging"
)

var log = logging.New("reporter")

type payload struct {
	FullDomain string `json:"fullDomain"`
	PlayerName string `json:"playerName"`
	PlayerIP   string `json:"playerIp"`
	PlayerUUID string `json:"playerUuid"`
}

// Reporter posts admission metadata to the manager.
type Reporter struct {
	http          *httpclient.Client
	managerAddr   string
	managerAPIKey string
	timeout       time.Duration
}

// New builds a Reporter. If managerAddr or managerAPIKey is empty the
// reporter is disabled: Report becomes a no-op.
func New(managerAddr, managerAPIKey string, timeout time.Duration) *Reporter {
	return &Reporter{
		http:          httpclient.New(),
		managerAddr:   managerAddr,
		managerAPIKey: managerAPIKey,
		timeout:       timeout,
	}
}

// Enabled reports whether both a manager address and API key are set.
func (r *Reporter) Enabled() bool {
	return r.managerAddr != "" && r.managerAPIKey != ""
}

// Report fires a background POST describing the admitted session.
// It never blocks the caller waiting for the response.
func (r *Reporter) Report(fullDomain, playerName, playerIP, playerUUID string) {
	if !r.Enabled() {
		return
	}

	body, err := json.Marshal(payload{
		FullDomain: fullDomain,
		PlayerName: playerName,
		PlayerIP:   playerIP,
		PlayerUUID: playerUUID,
	})
	if err != nil {
		log.Error("marshal report for %q failed: %v", fullDomain, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		url := fmt.Sprintf("%s/report", r.managerAddr)
		headers := map[string]string{"X-API-Key": r.managerAPIKey}
		if _, err := r.http.PostJSON(ctx, url, headers, body); err != nil {
			log.Error("report for %q failed: %v", fullDomain, err)
		}
	}()
}
